package email

import (
	"fmt"
	"strings"
)

const defaultCompany = "your company"

// CourtesyInput is what the courtesy reply is filled from. Name and Company
// come from extraction and may be blank.
type CourtesyInput struct {
	Name      string
	Company   string
	Signature string
	SelfEmail string
	Original  *ReplyInfo
}

// Reply is a composed answer to a recruiter, ready to be rendered with
// BuildMessage.
type Reply struct {
	To         []string
	Subject    string
	Body       string
	InReplyTo  string
	References string
}

// ComposeCourtesy fills the fixed "not interested right now" template and
// quotes the original message under it. A blank name drops the name from
// the greeting; a blank company reads "your company".
func ComposeCourtesy(in CourtesyInput) Reply {
	name := strings.TrimSpace(in.Name)
	company := strings.TrimSpace(in.Company)
	if company == "" {
		company = defaultCompany
	}

	var sb strings.Builder
	if name == "" {
		sb.WriteString("Hi,\n\n")
	} else {
		fmt.Fprintf(&sb, "Hi %s,\n\n", name)
	}
	fmt.Fprintf(&sb, "Thanks for reaching out! I'm not interested in new opportunities at this time, but I'll keep %s in mind for the future.\n\n\n", company)
	sb.WriteString("Thanks again,\n")
	if sig := strings.TrimSpace(in.Signature); sig != "" {
		sb.WriteString(sig)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	reply := Reply{}
	if in.Original != nil {
		sb.WriteString(QuoteBody(in.Original.Body))
		reply.To = BuildReplyRecipients(in.Original, in.SelfEmail)
		reply.Subject = ReplySubject(in.Original.Subject)
		reply.InReplyTo, reply.References = BuildReplyHeaders(in.Original)
	}
	reply.Body = sb.String()

	return reply
}

// Message turns the reply into BuildMessage input sent from from.
func (r Reply) Message(from string) ComposeInput {
	return ComposeInput{
		From:       from,
		To:         r.To,
		Subject:    r.Subject,
		Body:       r.Body,
		InReplyTo:  r.InReplyTo,
		References: r.References,
	}
}
