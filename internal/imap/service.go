package imap

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"recruiterrm/internal/config"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
)

type Client interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Create(name string) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, mailbox string) error
	Append(mailbox string, flags []string, date time.Time, msg imap.Literal) error
}

var _ Client = (*imapclient.Client)(nil)

type Service struct {
	Connector func(cfg config.Config) (Client, error)
}

func NewService() *Service {
	return &Service{Connector: Connect}
}

func Connect(cfg config.Config) (Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.IMAP.Host, cfg.IMAP.Port)
	tlsConfig := &tls.Config{
		ServerName:         cfg.IMAP.Host,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	}

	var c *imapclient.Client
	var err error
	if cfg.IMAP.TLS {
		c, err = imapclient.DialTLS(addr, tlsConfig)
	} else {
		c, err = imapclient.Dial(addr)
		if err == nil && cfg.IMAP.StartTLS {
			if err := c.StartTLS(tlsConfig); err != nil {
				_ = c.Logout()
				return nil, fmt.Errorf("imap starttls: %w", err)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}

	if err := c.Login(cfg.Auth.Username, cfg.Auth.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login as %s: %w", cfg.Auth.Username, err)
	}

	return c, nil
}

// Open connects and logs in. The returned session is meant to live for a
// whole run; the caller must Close it.
func (s *Service) Open(cfg config.Config) (*Session, error) {
	connector := s.Connector
	if connector == nil {
		connector = Connect
	}
	client, err := connector(cfg)
	if err != nil {
		return nil, err
	}
	return &Session{client: client}, nil
}

func (s *Service) ListMailboxes(cfg config.Config) ([]string, error) {
	session, err := s.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = session.Close()
	}()
	return session.ListMailboxes()
}

func (s *Service) CreateMailbox(cfg config.Config, name string) error {
	session, err := s.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = session.Close()
	}()
	if err := session.client.Create(name); err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	return nil
}

// Session is a logged-in IMAP connection. It is not safe for concurrent use.
type Session struct {
	client   Client
	selected string
	writable bool
}

func (s *Session) Close() error {
	return s.client.Logout()
}

func (s *Session) ListMailboxes() ([]string, error) {
	mailboxes := []string{}
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", ch)
	}()
	for mbox := range ch {
		mailboxes = append(mailboxes, mbox.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	return mailboxes, nil
}

func (s *Session) selectMailbox(name string, writable bool) error {
	if s.selected == name && (s.writable || !writable) {
		return nil
	}
	if _, err := s.client.Select(name, !writable); err != nil {
		return fmt.Errorf("select %q: %w", name, err)
	}
	s.selected = name
	s.writable = writable
	return nil
}

// FetchMessages returns every message in folder, oldest UID first. Bodies
// are fetched with BODY.PEEK so nothing is marked \Seen.
func (s *Session) FetchMessages(folder string) ([]Message, error) {
	if err := s.selectMailbox(folder, true); err != nil {
		return nil, err
	}

	uids, err := s.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", folder, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, ch)
	}()

	messages := make([]Message, 0, len(uids))
	var readErr error
	for msg := range ch {
		if msg == nil || readErr != nil {
			continue
		}
		m := Message{UID: msg.Uid}
		if msg.Envelope != nil {
			m.Subject = msg.Envelope.Subject
			m.From = formatIMAPAddresses(msg.Envelope.From)
			m.Date = msg.Envelope.Date
		}
		body := msg.GetBody(section)
		if body == nil {
			readErr = fmt.Errorf("message %d: body not available", msg.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = fmt.Errorf("message %d: read body: %w", msg.Uid, err)
			continue
		}
		m.Raw = raw
		messages = append(messages, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch %q: %w", folder, err)
	}
	if readErr != nil {
		return nil, readErr
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].UID < messages[j].UID })
	return messages, nil
}

// AppendSent stores a copy of an outgoing message in folder, flagged \Seen.
func (s *Session) AppendSent(folder string, raw []byte) error {
	if err := s.client.Append(folder, []string{imap.SeenFlag}, time.Now(), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("append to %q: %w", folder, err)
	}
	return nil
}

// Move moves uid from folder to dest. go-imap falls back to COPY, \Deleted
// and EXPUNGE itself on servers without the MOVE extension.
func (s *Session) Move(folder string, uid uint32, dest string) error {
	if err := s.selectMailbox(folder, true); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	if err := s.client.UidMove(seqset, dest); err != nil {
		return fmt.Errorf("move %d to %q: %w", uid, dest, err)
	}
	return nil
}

func formatIMAPAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		full := addr.MailboxName
		if addr.HostName != "" {
			full = addr.MailboxName + "@" + addr.HostName
		}
		if addr.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.PersonalName, full))
		} else {
			parts = append(parts, full)
		}
	}
	return strings.Join(parts, ", ")
}
