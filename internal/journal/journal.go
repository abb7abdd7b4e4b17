// Package journal records every courtesy reply that was sent, so that a
// message whose reply went out but whose archive step failed is not
// answered twice on the next run.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type Entry struct {
	MessageID string
	UID       uint32
	Recipient string
	Name      string
	Company   string
	ReplyID   string
	SentAt    time.Time
}

type row struct {
	MessageID string `db:"message_id"`
	UID       int64  `db:"uid"`
	Recipient string `db:"recipient"`
	Name      string `db:"name"`
	Company   string `db:"company"`
	ReplyID   string `db:"reply_id"`
	SentAt    int64  `db:"sent_at"`
}

type Journal struct {
	db *sqlx.DB
}

// Open opens (or creates) the journal at path. An empty path or ":memory:"
// gives a private in-memory journal.
func Open(ctx context.Context, path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := trimmed == "" || trimmed == ":memory:" || strings.Contains(trimmed, "mode=memory")
	if trimmed == "" {
		trimmed = ":memory:"
	}

	db, err := sqlx.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	j := &Journal{db: db}
	if err := j.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS replies (
		message_id TEXT PRIMARY KEY,
		uid INTEGER NOT NULL,
		recipient TEXT NOT NULL,
		name TEXT NOT NULL,
		company TEXT NOT NULL,
		reply_id TEXT NOT NULL,
		sent_at INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("creating replies table: %w", err)
	}
	return nil
}

// Replied reports whether a reply to messageID was already recorded.
func (j *Journal) Replied(ctx context.Context, messageID string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}
	var one int
	err := j.db.GetContext(ctx, &one, "SELECT 1 FROM replies WHERE message_id = ?", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up reply for %s: %w", messageID, err)
	}
	return true, nil
}

// Record stores e. Messages without a Message-ID cannot be matched later
// and are skipped.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.MessageID) == "" {
		return nil
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	r := row{
		MessageID: strings.TrimSpace(e.MessageID),
		UID:       int64(e.UID),
		Recipient: e.Recipient,
		Name:      e.Name,
		Company:   e.Company,
		ReplyID:   e.ReplyID,
		SentAt:    e.SentAt.UnixMilli(),
	}
	_, err := j.db.NamedExecContext(ctx, `INSERT INTO replies
		(message_id, uid, recipient, name, company, reply_id, sent_at)
		VALUES (:message_id, :uid, :recipient, :name, :company, :reply_id, :sent_at)
		ON CONFLICT(message_id) DO UPDATE SET
			uid = excluded.uid,
			recipient = excluded.recipient,
			name = excluded.name,
			company = excluded.company,
			reply_id = excluded.reply_id,
			sent_at = excluded.sent_at`, r)
	if err != nil {
		return fmt.Errorf("recording reply for %s: %w", r.MessageID, err)
	}
	return nil
}

// Entries returns every recorded reply, oldest first.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	var rows []row
	if err := j.db.SelectContext(ctx, &rows, "SELECT * FROM replies ORDER BY sent_at, message_id"); err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			MessageID: r.MessageID,
			UID:       uint32(r.UID),
			Recipient: r.Recipient,
			Name:      r.Name,
			Company:   r.Company,
			ReplyID:   r.ReplyID,
			SentAt:    time.UnixMilli(r.SentAt),
		})
	}
	return entries, nil
}
