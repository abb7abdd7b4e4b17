package responder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"recruiterrm/internal/email"
	"recruiterrm/internal/extract"
	"recruiterrm/internal/imap"
	"recruiterrm/internal/journal"
)

type fakeMailbox struct {
	folders   map[string][]imap.Message
	moveErr   error
	appendErr error
}

func (m *fakeMailbox) FetchMessages(folder string) ([]imap.Message, error) {
	msgs, ok := m.folders[folder]
	if !ok {
		return nil, fmt.Errorf("no mailbox %q", folder)
	}
	return append([]imap.Message(nil), msgs...), nil
}

func (m *fakeMailbox) AppendSent(folder string, raw []byte) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.folders[folder] = append(m.folders[folder], imap.Message{UID: uint32(len(m.folders[folder]) + 1), Raw: raw})
	return nil
}

func (m *fakeMailbox) Move(folder string, uid uint32, dest string) error {
	if m.moveErr != nil {
		return m.moveErr
	}
	kept := []imap.Message{}
	for _, msg := range m.folders[folder] {
		if msg.UID == uid {
			m.folders[dest] = append(m.folders[dest], msg)
			continue
		}
		kept = append(kept, msg)
	}
	m.folders[folder] = kept
	return nil
}

type fakeExtractor struct {
	results map[string]extract.Recruiter
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, body string) (extract.Recruiter, error) {
	f.calls++
	if f.err != nil {
		return extract.Recruiter{}, f.err
	}
	for marker, r := range f.results {
		if strings.Contains(body, marker) {
			return r, nil
		}
	}
	return extract.Recruiter{}, nil
}

type sentMessage struct {
	from string
	to   []string
	raw  string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(from string, recipients []string, msg []byte) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{from: from, to: recipients, raw: string(msg)})
	return nil
}

func decodedBody(t *testing.T, raw string) string {
	t.Helper()
	info, err := email.ExtractReplyInfo([]byte(raw))
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	return info.Body
}

func recruiterMessage(uid uint32, from, subject, body string) imap.Message {
	raw := fmt.Sprintf("From: %s\r\nTo: matt@example.com\r\nSubject: %s\r\nMessage-ID: <m%d@recruiters.test>\r\n\r\n%s\r\n", from, subject, uid, body)
	return imap.Message{UID: uid, Subject: subject, From: from, Raw: []byte(raw)}
}

func newTestResponder(mailbox *fakeMailbox, extractor extract.Extractor, sender *fakeSender) *Responder {
	return &Responder{
		Mailbox:   mailbox,
		Extractor: extractor,
		Sender:    sender,
		Options: Options{
			RecruiterFolder: "Recruitment",
			DoneFolder:      "Done",
			SentFolder:      "Sent",
			FromAddress:     "matt@example.com",
			Signature:       "Matt",
		},
		Out: &bytes.Buffer{},
		wait: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		},
	}
}

func newFolders(msgs ...imap.Message) *fakeMailbox {
	return &fakeMailbox{folders: map[string][]imap.Message{
		"Recruitment": msgs,
		"Done":        nil,
		"Sent":        nil,
	}}
}

func TestRunRepliesAndArchives(t *testing.T) {
	mailbox := newFolders(
		recruiterMessage(1, "Steve Jobs <steve@apple.com>", "Join Apple", "Hi Matt! Steve with Apple Computer Company here."),
		recruiterMessage(2, "Ana <ana@globex.test>", "Globex role", "Hello from Ana at Globex."),
	)
	extractor := &fakeExtractor{results: map[string]extract.Recruiter{
		"Apple":  {Name: "Steve", Company: "Apple Computer Company"},
		"Globex": {Name: "Ana", Company: "Globex"},
	}}
	sender := &fakeSender{}

	summary, err := newTestResponder(mailbox, extractor, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Total != 2 || summary.Replied != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(sender.sent))
	}
	first := sender.sent[0]
	if first.from != "matt@example.com" || len(first.to) != 1 || first.to[0] != "steve@apple.com" {
		t.Fatalf("unexpected envelope %+v", first)
	}
	if !strings.Contains(first.raw, "In-Reply-To: <m1@recruiters.test>") {
		t.Fatalf("reply not threaded:\n%s", first.raw)
	}
	body := decodedBody(t, first.raw)
	for _, want := range []string{"Hi Steve,", "keep Apple Computer Company in mind"} {
		if !strings.Contains(body, want) {
			t.Fatalf("reply missing %q:\n%s", want, body)
		}
	}

	if len(mailbox.folders["Recruitment"]) != 0 {
		t.Fatalf("recruiter folder still holds %d messages", len(mailbox.folders["Recruitment"]))
	}
	if len(mailbox.folders["Done"]) != 2 || mailbox.folders["Done"][0].UID != 1 {
		t.Fatalf("done folder does not hold the processed messages: %+v", mailbox.folders["Done"])
	}
	if len(mailbox.folders["Sent"]) != 2 {
		t.Fatalf("expected 2 sent copies, got %d", len(mailbox.folders["Sent"]))
	}
}

func TestRunSkipsConversationReplies(t *testing.T) {
	msg := imap.Message{UID: 5, Raw: []byte("From: steve@apple.com\r\nIn-Reply-To: <mine@example.com>\r\nSubject: Re: hi\r\n\r\nfollowing up\r\n")}
	mailbox := newFolders(msg)
	extractor := &fakeExtractor{}
	sender := &fakeSender{}

	summary, err := newTestResponder(mailbox, extractor, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.SkippedReplies != 1 || extractor.calls != 0 || len(sender.sent) != 0 {
		t.Fatalf("reply was not skipped: %+v", summary)
	}
	if len(mailbox.folders["Recruitment"]) != 1 {
		t.Fatalf("skipped message must stay in place")
	}
}

func TestRunDryRunSendsAndMovesNothing(t *testing.T) {
	mailbox := newFolders(recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"))
	sender := &fakeSender{}
	r := newTestResponder(mailbox, extract.NewCanned(), sender)
	r.Options.DryRun = true
	out := &bytes.Buffer{}
	r.Out = out

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.DryRun != 1 || len(sender.sent) != 0 {
		t.Fatalf("dry run sent mail: %+v", summary)
	}
	if len(mailbox.folders["Recruitment"]) != 1 || len(mailbox.folders["Sent"]) != 0 {
		t.Fatalf("dry run touched the mailbox")
	}
	if !strings.Contains(out.String(), "Generated response email:") || !strings.Contains(out.String(), "Subject: Re: Join Apple") {
		t.Fatalf("generated reply not printed:\n%s", out.String())
	}
}

func TestRunExtractionFailureLeavesMessageAndContinues(t *testing.T) {
	mailbox := newFolders(
		recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"),
	)
	extractor := &fakeExtractor{err: errors.New("completion API error (503): overloaded")}
	sender := &fakeSender{}

	summary, err := newTestResponder(mailbox, extractor, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("extraction failure must not abort the run: %v", err)
	}
	if summary.Failed != 1 || len(sender.sent) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(mailbox.folders["Recruitment"]) != 1 {
		t.Fatalf("failed message must stay in the recruiter folder")
	}
}

func TestRunUnreadableMessageLeftInPlace(t *testing.T) {
	broken := imap.Message{UID: 1, Subject: "hi", Raw: []byte("From: steve@apple.com\r\n" +
		"Content-Type: multipart/alternative; boundary=b1\r\n\r\n" +
		"--b1\r\nContent-Type: text/plain\r\n\r\nHi Matt, Steve at Ap")}
	mailbox := newFolders(broken, recruiterMessage(2, "ana@globex.test", "Globex", "Ana at Globex"))
	extractor := &fakeExtractor{}
	sender := &fakeSender{}

	summary, err := newTestResponder(mailbox, extractor, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 || summary.Replied != 1 || extractor.calls != 1 {
		t.Fatalf("unexpected summary %+v, extractor calls %d", summary, extractor.calls)
	}
	if len(mailbox.folders["Recruitment"]) != 1 || mailbox.folders["Recruitment"][0].UID != 1 {
		t.Fatalf("unreadable message should stay in the recruiter folder")
	}
}

func TestRunBlankExtractionUsesFallbacks(t *testing.T) {
	mailbox := newFolders(recruiterMessage(1, "hr@initech.test", "Role", "We have a role"))
	sender := &fakeSender{}

	if _, err := newTestResponder(mailbox, &fakeExtractor{}, sender).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected a reply, got %d", len(sender.sent))
	}
	if body := decodedBody(t, sender.sent[0].raw); !strings.Contains(body, "keep your company in mind") {
		t.Fatalf("fallback missing:\n%s", body)
	}
}

func TestRunSendFailureIsFatal(t *testing.T) {
	mailbox := newFolders(
		recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"),
		recruiterMessage(2, "ana@globex.test", "Globex", "Globex here"),
	)
	sender := &fakeSender{err: errors.New("554 rejected")}
	extractor := &fakeExtractor{}

	_, err := newTestResponder(mailbox, extractor, sender).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "554 rejected") {
		t.Fatalf("expected send error, got %v", err)
	}
	if extractor.calls != 1 {
		t.Fatalf("run continued after fatal error: %d extractions", extractor.calls)
	}
	if len(mailbox.folders["Recruitment"]) != 2 {
		t.Fatalf("unsent message was archived")
	}
}

func TestRunMoveFailureIsFatal(t *testing.T) {
	mailbox := newFolders(recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"))
	mailbox.moveErr = errors.New("NO [TRYCREATE] no such mailbox")

	if _, err := newTestResponder(mailbox, &fakeExtractor{}, &fakeSender{}).Run(context.Background()); err == nil {
		t.Fatalf("expected archive error")
	}
}

func TestRunReaderFailureIsFatal(t *testing.T) {
	r := newTestResponder(&fakeMailbox{folders: map[string][]imap.Message{}}, &fakeExtractor{}, &fakeSender{})
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing recruiter folder")
	}
}

func TestRunJournalPreventsDoubleReply(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	mailbox := newFolders(recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"))
	mailbox.moveErr = errors.New("connection reset")
	sender := &fakeSender{}
	r := newTestResponder(mailbox, &fakeExtractor{}, sender)
	r.Journal = j

	if _, err := r.Run(ctx); err == nil {
		t.Fatalf("expected archive error on first run")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected first run to send, got %d", len(sender.sent))
	}

	mailbox.moveErr = nil
	summary, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.AlreadyReplied != 1 || len(sender.sent) != 1 {
		t.Fatalf("message answered twice: %+v, sent=%d", summary, len(sender.sent))
	}
	if len(mailbox.folders["Done"]) != 1 {
		t.Fatalf("journaled message was not archived")
	}
}

func TestRunJournalsBeforeSavingSentCopy(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	mailbox := newFolders(recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"))
	mailbox.appendErr = errors.New("NO [TRYCREATE] Sent missing")
	sender := &fakeSender{}
	r := newTestResponder(mailbox, &fakeExtractor{}, sender)
	r.Journal = j

	if _, err := r.Run(ctx); err == nil {
		t.Fatalf("expected sent copy error on first run")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected first run to send, got %d", len(sender.sent))
	}
	if len(mailbox.folders["Recruitment"]) != 1 {
		t.Fatalf("message should stay in place after a failed run")
	}

	mailbox.appendErr = nil
	summary, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.AlreadyReplied != 1 || summary.Replied != 0 || len(sender.sent) != 1 {
		t.Fatalf("message answered twice: %+v, sent=%d", summary, len(sender.sent))
	}
	if len(mailbox.folders["Done"]) != 1 {
		t.Fatalf("journaled message was not archived")
	}
}

func TestRunStopsWhenCanceled(t *testing.T) {
	mailbox := newFolders(recruiterMessage(1, "steve@apple.com", "Join Apple", "Apple here"))
	sender := &fakeSender{}
	r := newTestResponder(mailbox, &fakeExtractor{}, sender)
	r.Options.GracePeriod = time.Hour
	r.wait = nil

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("reply sent despite cancellation")
	}
}
