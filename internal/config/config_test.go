package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "triage@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("TICKET_API_URL", "https://tickets.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "imap.example.com:993", cfg.IMAPAddr())
	assert.True(t, cfg.IMAPTLS)
	assert.Equal(t, "INBOX", cfg.InboxFolder)
	assert.Equal(t, "Archive", cfg.ArchiveFolder)
	assert.Equal(t, "Deferred", cfg.DeferredFolder)
	assert.Equal(t, 14*24*time.Hour, cfg.DeferLifetime())
	assert.Equal(t, DefaultSeparators, cfg.FilterSeparators)
	assert.Equal(t, 2, cfg.MaxBlankLines)
	assert.True(t, cfg.FilterStructural)
	assert.True(t, cfg.FilterLinks)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IMAP_PORT", "143")
	t.Setenv("IMAP_TLS", "false")
	t.Setenv("IGNORE_ADDRESSES", "*@noise.example.com,noreply@*")
	t.Setenv("DEFAULT_TICKET_ID", "42")
	t.Setenv("FILTER_SEPARATORS", `(?m)^--\s*$;;(?m)^__+$`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "imap.example.com:143", cfg.IMAPAddr())
	assert.False(t, cfg.IMAPTLS)
	assert.Equal(t, []string{"*@noise.example.com", "noreply@*"}, cfg.IgnoreAddresses)
	assert.Equal(t, 42, cfg.DefaultTicketID)
	assert.Equal(t, []string{`(?m)^--\s*$`, `(?m)^__+$`}, cfg.FilterSeparators)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "triage@example.com")
	t.Setenv("TICKET_API_URL", "https://tickets.example.com")
	// IMAP_PASSWORD left unset.

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("port out of range", func(t *testing.T) {
		setRequired(t)
		t.Setenv("IMAP_PORT", "70000")
		_, err := Load()
		assert.ErrorContains(t, err, "IMAP_PORT")
	})

	t.Run("non-positive lifetime", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DEFER_LIFETIME_DAYS", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "DEFER_LIFETIME_DAYS")
	})

	t.Run("invalid separator regex", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FILTER_SEPARATORS", `([unclosed`)
		_, err := Load()
		assert.ErrorContains(t, err, "FILTER_SEPARATORS")
	})
}
