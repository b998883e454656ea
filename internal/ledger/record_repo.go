package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avreyn/mailtriage/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// UpsertRecord inserts a deferral record or, when one already exists for the
// message identifier, refreshes it in place. The unique constraint keeps
// this atomic under concurrent runs.
func (db *DB) UpsertRecord(ctx context.Context, rec *models.DeferralRecord) error {
	query := `
		INSERT INTO deferral_records (message_id, from_addr, subject, reason, deferred_at, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			from_addr = excluded.from_addr,
			subject = excluded.subject,
			reason = excluded.reason,
			deferred_at = excluded.deferred_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		rec.MessageID,
		rec.FromAddr,
		rec.Subject,
		rec.Reason,
		rec.DeferredAt,
		rec.ExpiresAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// GetRecord returns the record for a message identifier.
func (db *DB) GetRecord(ctx context.Context, messageID string) (*models.DeferralRecord, error) {
	var rec models.DeferralRecord
	query := `SELECT * FROM deferral_records WHERE message_id = ?`
	err := db.GetContext(ctx, &rec, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// DeleteRecord removes the record for a message identifier. Deleting an
// absent record is not an error.
func (db *DB) DeleteRecord(ctx context.Context, messageID string) error {
	query := `DELETE FROM deferral_records WHERE message_id = ?`
	if _, err := db.ExecContext(ctx, query, messageID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// DeleteExpired removes every record whose expiry is in the past and
// returns how many were deleted.
func (db *DB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM deferral_records WHERE expires_at < ?`
	result, err := db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// CountPending returns how many records have not expired yet.
func (db *DB) CountPending(ctx context.Context, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM deferral_records WHERE expires_at >= ?`
	if err := db.GetContext(ctx, &n, query, now); err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}
