// Package responder runs the recruiter reply pipeline: read the recruiter
// folder, extract who wrote each message, send a courtesy reply, keep a copy
// in Sent and archive the original.
package responder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"recruiterrm/internal/email"
	"recruiterrm/internal/extract"
	"recruiterrm/internal/imap"
	"recruiterrm/internal/journal"
)

type Mailbox interface {
	FetchMessages(folder string) ([]imap.Message, error)
	AppendSent(folder string, raw []byte) error
	Move(folder string, uid uint32, dest string) error
}

type Sender interface {
	Send(from string, recipients []string, msg []byte) error
}

type Journal interface {
	Replied(ctx context.Context, messageID string) (bool, error)
	Record(ctx context.Context, e journal.Entry) error
}

type Options struct {
	RecruiterFolder string
	DoneFolder      string
	SentFolder      string
	FromAddress     string
	Signature       string
	DryRun          bool
	GracePeriod     time.Duration
}

// Summary counts what happened to each message of a run.
type Summary struct {
	Total          int
	Replied        int
	DryRun         int
	SkippedReplies int
	AlreadyReplied int
	Failed         int
}

type Responder struct {
	Mailbox   Mailbox
	Extractor extract.Extractor
	Sender    Sender
	// Journal is optional.
	Journal Journal
	Options Options
	Logger  *slog.Logger
	// Out receives the generated reply of every message.
	Out io.Writer

	wait func(ctx context.Context, d time.Duration) error
}

// Run handles every message of the recruiter folder in UID order. A message
// whose parsing or extraction fails is logged and left in place; a failure
// to send, store or archive stops the run.
func (r *Responder) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	logger := r.logger()

	messages, err := r.Mailbox.FetchMessages(r.Options.RecruiterFolder)
	if err != nil {
		return summary, fmt.Errorf("reading %s: %w", r.Options.RecruiterFolder, err)
	}
	summary.Total = len(messages)
	logger.Info("responding to recruiter emails", "folder", r.Options.RecruiterFolder, "count", len(messages))

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger.Info("handling message", "n", i+1, "of", len(messages), "uid", msg.UID, "subject", msg.Subject)
		if err := r.handle(ctx, msg, &summary); err != nil {
			return summary, fmt.Errorf("message %d (%q): %w", msg.UID, msg.Subject, err)
		}
	}

	logger.Info("run complete",
		"total", summary.Total,
		"replied", summary.Replied,
		"dry_run", summary.DryRun,
		"skipped_replies", summary.SkippedReplies,
		"already_replied", summary.AlreadyReplied,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Responder) handle(ctx context.Context, msg imap.Message, summary *Summary) error {
	logger := r.logger().With("uid", msg.UID)

	info, err := email.ExtractReplyInfo(msg.Raw)
	if err != nil {
		logger.Warn("cannot parse message; skipping", "error", err)
		summary.Failed++
		return nil
	}
	if info.IsReply() {
		logger.Info("message is part of an ongoing conversation; skipping", "in_reply_to", info.InReplyTo)
		summary.SkippedReplies++
		return nil
	}

	if r.Journal != nil {
		replied, err := r.Journal.Replied(ctx, info.MessageID)
		if err != nil {
			return err
		}
		if replied {
			logger.Info("reply already sent in an earlier run", "message_id", info.MessageID)
			summary.AlreadyReplied++
			if r.Options.DryRun {
				return nil
			}
			return r.archive(msg)
		}
	}

	recruiter, err := r.Extractor.Extract(ctx, info.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("extracting recruiter failed; skipping", "error", err, "body", info.Body)
		summary.Failed++
		return nil
	}
	logger.Debug("extracted recruiter", "name", recruiter.Name, "company", recruiter.Company)

	reply := email.ComposeCourtesy(email.CourtesyInput{
		Name:      recruiter.Name,
		Company:   recruiter.Company,
		Signature: r.Options.Signature,
		SelfEmail: r.Options.FromAddress,
		Original:  info,
	})
	if len(reply.To) == 0 {
		logger.Warn("no address to reply to; skipping", "from", info.From)
		summary.Failed++
		return nil
	}

	raw, replyID, err := email.BuildMessage(reply.Message(r.fromHeader()))
	if err != nil {
		return fmt.Errorf("building reply: %w", err)
	}
	r.print(raw)

	if r.Options.DryRun {
		logger.Info("dry run; not sending reply", "to", strings.Join(reply.To, ", "))
		summary.DryRun++
		return nil
	}

	logger.Info("sending reply after grace period", "to", strings.Join(reply.To, ", "), "grace_period", r.Options.GracePeriod)
	if err := r.waitFor(ctx, r.Options.GracePeriod); err != nil {
		return err
	}

	if err := r.Sender.Send(r.Options.FromAddress, reply.To, raw); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	// Recorded as soon as the reply is out; a failed append or move must not
	// lead to a second reply.
	if r.Journal != nil {
		err := r.Journal.Record(ctx, journal.Entry{
			MessageID: info.MessageID,
			UID:       msg.UID,
			Recipient: strings.Join(reply.To, ", "),
			Name:      recruiter.Name,
			Company:   recruiter.Company,
			ReplyID:   replyID,
		})
		if err != nil {
			return err
		}
	}
	if err := r.Mailbox.AppendSent(r.Options.SentFolder, raw); err != nil {
		return fmt.Errorf("saving sent copy: %w", err)
	}
	logger.Info("sent reply", "reply_id", replyID)
	summary.Replied++

	return r.archive(msg)
}

func (r *Responder) archive(msg imap.Message) error {
	if err := r.Mailbox.Move(r.Options.RecruiterFolder, msg.UID, r.Options.DoneFolder); err != nil {
		return fmt.Errorf("archiving to %s: %w", r.Options.DoneFolder, err)
	}
	r.logger().Info("archived message", "uid", msg.UID, "folder", r.Options.DoneFolder)
	return nil
}

func (r *Responder) fromHeader() string {
	if r.Options.Signature == "" {
		return r.Options.FromAddress
	}
	addr := mail.Address{Name: r.Options.Signature, Address: r.Options.FromAddress}
	return addr.String()
}

func (r *Responder) print(raw []byte) {
	if r.Out == nil {
		return
	}
	fmt.Fprintln(r.Out, "Generated response email:")
	fmt.Fprintln(r.Out, strings.ReplaceAll(string(raw), "\r\n", "\n"))
}

func (r *Responder) waitFor(ctx context.Context, d time.Duration) error {
	if r.wait != nil {
		return r.wait(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Responder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
