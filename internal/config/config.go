package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Mailbox
	IMAPHost     string        `env:"IMAP_HOST,required"`
	IMAPPort     int           `env:"IMAP_PORT" envDefault:"993"`
	IMAPTLS      bool          `env:"IMAP_TLS" envDefault:"true"`
	IMAPUsername string        `env:"IMAP_USERNAME,required"`
	IMAPPassword string        `env:"IMAP_PASSWORD,required"`
	DialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	DialRetries  int           `env:"IMAP_DIAL_RETRIES" envDefault:"3"`

	// Folders
	InboxFolder    string `env:"FOLDER_INBOX" envDefault:"INBOX"`
	ArchiveFolder  string `env:"FOLDER_ARCHIVE" envDefault:"Archive"`
	DeferredFolder string `env:"FOLDER_DEFERRED" envDefault:"Deferred"`

	// Routing
	IgnoreAddresses   []string `env:"IGNORE_ADDRESSES" envSeparator:","`
	DefaultTicketID   int      `env:"DEFAULT_TICKET_ID"`
	DeferLifetimeDays int      `env:"DEFER_LIFETIME_DAYS" envDefault:"14"`

	// Ticket/identity API
	TicketAPIURL   string `env:"TICKET_API_URL,required"`
	TicketAPIToken string `env:"TICKET_API_TOKEN"`

	// Attachments
	ExcludeAttachments        bool     `env:"ATTACHMENT_EXCLUDE_ENABLED" envDefault:"true"`
	AttachmentExcludePatterns []string `env:"ATTACHMENT_EXCLUDE_PATTERNS" envSeparator:","`

	// Text filters. Separator patterns are regexes, so they get an
	// uncommon list separator to keep commas usable inside them.
	FilterStructural bool     `env:"FILTER_STRUCTURAL" envDefault:"true"`
	FilterLinks      bool     `env:"FILTER_LINKS" envDefault:"true"`
	FilterSeparators []string `env:"FILTER_SEPARATORS" envSeparator:";;"`
	MaxBlankLines    int      `env:"MAX_BLANK_LINES" envDefault:"2"`

	// Storage
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailtriage.db"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// DefaultSeparators match the most common reply boundaries.
var DefaultSeparators = []string{
	`(?m)^-{3,}\s*Original Message\s*-{3,}`,
	`(?m)^On .{1,200}wrote:\s*$`,
}

// IMAPAddr returns the host:port the session dials.
func (c *Config) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort)
}

// DeferLifetime returns the configured deferral lifetime as a duration.
func (c *Config) DeferLifetime() time.Duration {
	return time.Duration(c.DeferLifetimeDays) * 24 * time.Hour
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return nil, fmt.Errorf("IMAP_PORT out of range: %d", cfg.IMAPPort)
	}
	if cfg.DeferLifetimeDays <= 0 {
		return nil, fmt.Errorf("DEFER_LIFETIME_DAYS must be positive, got %d", cfg.DeferLifetimeDays)
	}
	if cfg.MaxBlankLines < 1 {
		return nil, fmt.Errorf("MAX_BLANK_LINES must be at least 1, got %d", cfg.MaxBlankLines)
	}
	if len(cfg.FilterSeparators) == 0 {
		cfg.FilterSeparators = DefaultSeparators
	}
	for _, pat := range cfg.FilterSeparators {
		if _, err := regexp.Compile(pat); err != nil {
			return nil, fmt.Errorf("invalid FILTER_SEPARATORS pattern %q: %w", pat, err)
		}
	}

	return cfg, nil
}
