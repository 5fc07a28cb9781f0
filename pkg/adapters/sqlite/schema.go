package sqlite

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    -- newline separated addresses
    recipients TEXT NOT NULL,
    status TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    -- unix nanoseconds, UTC
    delivered_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_message_id
    ON deliveries(message_id);

CREATE INDEX IF NOT EXISTS idx_deliveries_failed
    ON deliveries(delivered_at) WHERE status = 'failed';
`

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
