package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/avreyn/mailtriage/internal/config"
	"github.com/avreyn/mailtriage/internal/decoder"
	"github.com/avreyn/mailtriage/internal/imapx"
	"github.com/avreyn/mailtriage/internal/ledger"
	"github.com/avreyn/mailtriage/internal/logx"
	"github.com/avreyn/mailtriage/internal/pipeline"
	"github.com/avreyn/mailtriage/internal/router"
	"github.com/avreyn/mailtriage/internal/ticketapi"
)

const usage = `usage: mailtriage <command>

commands:
  import [-limit N]   drain unseen messages from the inbox folder
  recheck             re-evaluate every message in the deferred folder
  sweep               delete expired deferral records from the ledger
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Open ledger and run migrations
	db, err := ledger.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	dec, err := decoder.New(decoder.Options{
		ExcludeAttachments: cfg.ExcludeAttachments,
		ExcludePatterns:    cfg.AttachmentExcludePatterns,
		StructuralFilter:   cfg.FilterStructural,
		LinkFilter:         cfg.FilterLinks,
		SeparatorPatterns:  cfg.FilterSeparators,
		MaxBlankLines:      cfg.MaxBlankLines,
	}, logger)
	if err != nil {
		logger.Error("failed to create decoder", "error", err)
		os.Exit(1)
	}

	api := ticketapi.NewClient(ticketapi.Config{
		BaseURL: cfg.TicketAPIURL,
		Token:   cfg.TicketAPIToken,
	})

	p := pipeline.New(pipeline.Deps{
		Config: cfg,
		Dial: func(ctx context.Context) (imapx.Session, error) {
			return imapx.Dial(ctx, imapx.Config{
				Addr:        cfg.IMAPAddr(),
				Username:    cfg.IMAPUsername,
				Password:    cfg.IMAPPassword,
				UseTLS:      cfg.IMAPTLS,
				DialTimeout: cfg.DialTimeout,
				Retries:     cfg.DialRetries,
			}, logger)
		},
		Decoder:   dec,
		Router:    router.New(cfg.IgnoreAddresses, api, logger),
		Ledger:    db,
		Tickets:   api,
		Directory: api,
		Logger:    logger,
	})

	if err := run(ctx, p, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("run failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p *pipeline.Pipeline, command string, args []string) error {
	switch command {
	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		limit := fs.Int("limit", 0, "maximum number of messages to process (0 = all)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		_, err := p.Import(ctx, *limit)
		return err
	case "recheck":
		_, err := p.RecheckDeferred(ctx)
		return err
	case "sweep":
		_, err := p.SweepExpired(ctx)
		return err
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	// Suppress identical records repeated within a minute.
	return slog.New(logx.NewDedupeHandler(handler, time.Minute, 256))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
