package email

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"net/mail"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

type ReplyInfo struct {
	MessageID  string
	InReplyTo  string
	References string
	From       string
	ReplyTo    string
	Date       string
	Subject    string
	Body       string
}

// IsReply reports whether the message answers an earlier one.
func (info *ReplyInfo) IsReply() bool {
	return info != nil && info.InReplyTo != ""
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// ExtractReplyInfo parses a raw message. Body is the first text/plain part;
// when a message only carries HTML, the markup is stripped to text.
func ExtractReplyInfo(raw []byte) (*ReplyInfo, error) {
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	header := r.Header
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	info := &ReplyInfo{
		MessageID:  firstHeaderValue(header, "Message-ID", "Message-Id"),
		InReplyTo:  strings.TrimSpace(header.Get("In-Reply-To")),
		References: strings.TrimSpace(header.Get("References")),
		From:       header.Get("From"),
		ReplyTo:    header.Get("Reply-To"),
		Date:       header.Get("Date"),
		Subject:    subject,
	}

	var htmlBody string
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		// Parts in an unknown charset or encoding are still readable as is.
		if err != nil && (part == nil || !(message.IsUnknownCharset(err) || message.IsUnknownEncoding(err))) {
			return nil, fmt.Errorf("reading message part: %w", err)
		}
		h, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && info.Body == "":
			if info.Body, err = readAll(part.Body); err != nil {
				return nil, err
			}
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			if htmlBody, err = readAll(part.Body); err != nil {
				return nil, err
			}
		}
	}

	if info.Body != "" && looksLikeHTML(info.Body) {
		htmlBody, info.Body = info.Body, ""
	}
	if info.Body == "" && htmlBody != "" {
		info.Body = StripHTMLTags(htmlBody)
	}

	return info, nil
}

func BuildReplyHeaders(info *ReplyInfo) (string, string) {
	if info == nil {
		return "", ""
	}
	messageID := strings.TrimSpace(info.MessageID)
	inReplyTo := messageID
	refs := strings.TrimSpace(info.References)
	if refs == "" {
		refs = messageID
	} else if messageID != "" && !strings.Contains(refs, messageID) {
		refs = refs + " " + messageID
	}
	return inReplyTo, refs
}

// BuildReplyRecipients answers Reply-To when present, otherwise From, never
// including selfEmail.
func BuildReplyRecipients(info *ReplyInfo, selfEmail string) []string {
	if info == nil {
		return nil
	}
	replyAddress := strings.TrimSpace(info.ReplyTo)
	if replyAddress == "" {
		replyAddress = info.From
	}
	toAddrs := parseEmailAddresses(replyAddress)
	toAddrs = filterOutSelf(toAddrs, selfEmail)
	return deduplicateAddresses(toAddrs)
}

func ReplySubject(original string) string {
	trimmed := strings.TrimSpace(original)
	if trimmed == "" {
		return "Re:"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// QuoteBody prefixes every line of body with "> ".
func QuoteBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(body, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func StripHTMLTags(s string) string {
	text := html.UnescapeString(textPolicy.Sanitize(s))
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func parseEmailAddresses(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		return parseEmailAddressesFallback(header)
	}
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Address != "" {
			result = append(result, strings.ToLower(addr.Address))
		}
	}
	return result
}

func parseEmailAddressesFallback(header string) []string {
	parts := strings.Split(header, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if start := strings.LastIndex(p, "<"); start != -1 {
			if end := strings.LastIndex(p, ">"); end > start {
				if addr := strings.TrimSpace(p[start+1 : end]); addr != "" {
					result = append(result, strings.ToLower(addr))
				}
				continue
			}
		}
		if strings.Contains(p, "@") {
			result = append(result, strings.ToLower(p))
		}
	}
	return result
}

func filterOutSelf(addresses []string, selfEmail string) []string {
	selfLower := strings.ToLower(selfEmail)
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if strings.ToLower(addr) != selfLower {
			result = append(result, addr)
		}
	}
	return result
}

func deduplicateAddresses(addresses []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		lower := strings.ToLower(addr)
		if !seen[lower] {
			seen[lower] = true
			result = append(result, addr)
		}
	}
	return result
}

func looksLikeHTML(value string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	return strings.HasPrefix(trimmed, "<!doctype") ||
		strings.HasPrefix(trimmed, "<html") ||
		strings.HasPrefix(trimmed, "<body") ||
		strings.Contains(trimmed, "<html")
}

func firstHeaderValue(header gomail.Header, names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(header.Get(name)); value != "" {
			return value
		}
	}
	return ""
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading message body: %w", err)
	}
	return string(data), nil
}
