package ip

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paninifs/engine/pkg/sqliteutil"
)

// AuditEntry is one immutable line of the IP audit log.
type AuditEntry struct {
	ID         string    `json:"id"`
	ObjectHash string    `json:"object_hash"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuditTrail records IP operations in an append-only SQLite log.
// Entries are never updated or deleted.
type AuditTrail struct {
	db *sql.DB
}

func NewAuditTrail(path string) (*AuditTrail, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(),
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			object_hash TEXT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			recorded_at TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit table: %w", err)
	}
	_, err = db.ExecContext(context.Background(),
		`CREATE INDEX IF NOT EXISTS idx_audit_object ON audit_log (object_hash)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit index: %w", err)
	}

	return &AuditTrail{db: db}, nil
}

// Record appends one entry.
func (a *AuditTrail) Record(ctx context.Context, objectHash, actor, action, detail string) (*AuditEntry, error) {
	entry := &AuditEntry{
		ID:         uuid.NewString(),
		ObjectHash: objectHash,
		Actor:      actor,
		Action:     action,
		Detail:     detail,
		RecordedAt: time.Now().UTC(),
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, object_hash, actor, action, detail, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ObjectHash, entry.Actor, entry.Action, entry.Detail,
		entry.RecordedAt.Format("2006-01-02T15:04:05.000000000Z07:00"))
	if err != nil {
		return nil, fmt.Errorf("recording audit entry: %w", err)
	}
	return entry, nil
}

// List returns the entries for an object in recording order.
func (a *AuditTrail) List(ctx context.Context, objectHash string) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, object_hash, actor, action, detail, recorded_at FROM audit_log WHERE object_hash = ? ORDER BY recorded_at, id`,
		objectHash)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var stamp string
		if err := rows.Scan(&entry.ID, &entry.ObjectHash, &entry.Actor, &entry.Action, &entry.Detail, &stamp); err != nil {
			return nil, err
		}
		entry.RecordedAt, _ = time.Parse(time.RFC3339Nano, stamp)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close releases the underlying database.
func (a *AuditTrail) Close() error {
	return a.db.Close()
}
