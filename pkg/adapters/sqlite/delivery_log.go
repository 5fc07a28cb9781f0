// Package sqlite records delivery outcomes in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aretw0/commentmail/pkg/core"
)

// DeliveryLog is a core.DeliveryListener that persists every outcome.
type DeliveryLog struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ core.DeliveryListener = (*DeliveryLog)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*DeliveryLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("delivery log path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open delivery log: %w", err)
	}
	// Outcomes arrive from several delivery goroutines; SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DeliveryLog{db: db, logger: logger}, nil
}

// Close releases the database.
func (l *DeliveryLog) Close() error {
	return l.db.Close()
}

// OnDelivery implements core.DeliveryListener. Storage errors are logged,
// never propagated to the transport.
func (l *DeliveryLog) OnDelivery(ctx context.Context, outcome core.DeliveryOutcome) {
	if err := l.Record(ctx, outcome); err != nil {
		l.logger.ErrorContext(ctx, "failed to record delivery", "message", outcome.MessageID, "error", err)
	}
}

// Record inserts one outcome.
func (l *DeliveryLog) Record(ctx context.Context, outcome core.DeliveryOutcome) error {
	at := outcome.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO deliveries (message_id, subject, recipients, status, reason, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		outcome.MessageID,
		outcome.Subject,
		strings.Join(outcome.Recipients, "\n"),
		string(outcome.Status),
		outcome.Reason,
		at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", outcome.MessageID, err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (l *DeliveryLog) Recent(ctx context.Context, limit int) ([]core.DeliveryOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT message_id, subject, recipients, status, reason, delivered_at
		 FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []core.DeliveryOutcome
	for rows.Next() {
		var (
			o          core.DeliveryOutcome
			recipients string
			status     string
			at         int64
		)
		if err := rows.Scan(&o.MessageID, &o.Subject, &recipients, &status, &o.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		o.Status = core.DeliveryStatus(status)
		o.At = time.Unix(0, at).UTC()
		if recipients != "" {
			o.Recipients = strings.Split(recipients, "\n")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountByStatus returns how many outcomes have the given status.
func (l *DeliveryLog) CountByStatus(ctx context.Context, status core.DeliveryStatus) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}
