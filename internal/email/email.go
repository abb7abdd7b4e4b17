package email

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

type ComposeInput struct {
	From       string
	To         []string
	Subject    string
	Body       string
	InReplyTo  string
	References string
	Date       time.Time
}

// BuildMessage renders a single-part text/plain message. It returns the raw
// bytes along with the generated Message-ID.
func BuildMessage(in ComposeInput) ([]byte, string, error) {
	from, err := mail.ParseAddress(in.From)
	if err != nil {
		return nil, "", fmt.Errorf("parse from address %q: %w", in.From, err)
	}
	if len(in.To) == 0 {
		return nil, "", fmt.Errorf("no recipients provided")
	}
	to := make([]*gomail.Address, 0, len(in.To))
	for _, rcpt := range in.To {
		addr, err := mail.ParseAddress(rcpt)
		if err != nil {
			return nil, "", fmt.Errorf("parse recipient %q: %w", rcpt, err)
		}
		to = append(to, addr)
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	messageID := newMessageID(from.Address)

	var h gomail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*gomail.Address{from})
	h.SetAddressList("To", to)
	if in.Subject != "" {
		h.SetSubject(in.Subject)
	}
	h.SetMessageID(messageID)
	if in.InReplyTo != "" {
		h.Set("In-Reply-To", in.InReplyTo)
	}
	if in.References != "" {
		h.Set("References", in.References)
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", err
	}
	if _, err := w.Write([]byte(in.Body)); err != nil {
		_ = w.Close()
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), "<" + messageID + ">", nil
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at != -1 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}
