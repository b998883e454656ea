package ledger

const schema = `
CREATE TABLE IF NOT EXISTS deferral_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL UNIQUE,
    from_addr TEXT NOT NULL,
    subject TEXT,
    reason TEXT NOT NULL,
    deferred_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_expires ON deferral_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_records_from ON deferral_records(from_addr);
`
