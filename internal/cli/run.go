package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"recruiterrm/internal/config"
	"recruiterrm/internal/extract"
	"recruiterrm/internal/imap"
	"recruiterrm/internal/journal"
	"recruiterrm/internal/responder"
	"recruiterrm/internal/smtp"

	"github.com/spf13/cobra"
)

type mailboxSession interface {
	responder.Mailbox
	Close() error
}

// Swapped in tests.
var (
	openMailbox = func(cfg config.Config) (mailboxSession, error) {
		session, err := imap.NewService().Open(cfg)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	newSender = func(cfg config.Config) responder.Sender {
		return smtp.NewSender(cfg)
	}
)

func runResponder(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if cfg.Run.DryRun {
		logger.Info("dry run mode on; no mail will be sent or moved")
	}

	var extractor extract.Extractor
	if cfg.Completion.Bypass {
		logger.Info("bypassing completion API; using canned recruiter data")
		extractor = extract.NewCanned()
	} else {
		extractor = extract.New(cfg.Completion)
	}

	session, err := openMailbox(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("imap logout", "error", err)
		}
	}()

	r := &responder.Responder{
		Mailbox:   session,
		Extractor: extractor,
		Sender:    newSender(cfg),
		Options: responder.Options{
			RecruiterFolder: cfg.Mailbox.RecruiterFolder,
			DoneFolder:      cfg.Mailbox.DoneFolder,
			SentFolder:      cfg.Mailbox.SentFolder,
			FromAddress:     cfg.Identity.Email,
			Signature:       cfg.Identity.Signature,
			DryRun:          cfg.Run.DryRun,
			GracePeriod:     cfg.Run.GracePeriod,
		},
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		r.Journal = j
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Done: %d replied, %d dry run, %d skipped, %d failed of %d.\n",
		summary.Replied, summary.DryRun, summary.SkippedReplies+summary.AlreadyReplied, summary.Failed, summary.Total)
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
