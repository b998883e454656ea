package models

import "time"

// DeferReason explains why a message was set aside.
type DeferReason string

const (
	ReasonUnknownSender DeferReason = "unknown_sender"
	ReasonIgnored       DeferReason = "ignored"
	ReasonOther         DeferReason = "other"
)

// DeferralRecord is the ledger entry for a deferred message. The deferred
// folder decides whether the message is still pending; the record only
// remembers when it was set aside, why, and when it expires.
type DeferralRecord struct {
	ID         int64       `db:"id"`
	MessageID  string      `db:"message_id"` // Email Message-ID header, unique
	FromAddr   string      `db:"from_addr"`
	Subject    string      `db:"subject"`
	Reason     DeferReason `db:"reason"`
	DeferredAt time.Time   `db:"deferred_at"`
	ExpiresAt  time.Time   `db:"expires_at"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

// Expired reports whether the record's lifetime has run out at the given time.
func (r *DeferralRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
