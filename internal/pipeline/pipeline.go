// Package pipeline wires the protocol session, decoder, router, ledger and
// the external collaborators into the three scheduler entry points: import,
// recheck-deferred and sweep-expired.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/avreyn/mailtriage/internal/config"
	"github.com/avreyn/mailtriage/internal/decoder"
	"github.com/avreyn/mailtriage/internal/imapx"
	"github.com/avreyn/mailtriage/internal/ledger"
	"github.com/avreyn/mailtriage/internal/logx"
	"github.com/avreyn/mailtriage/internal/router"
	"github.com/avreyn/mailtriage/internal/ticketapi"
	"github.com/avreyn/mailtriage/pkg/models"
)

// Dialer opens a fresh protocol session. Each entry point dials its own;
// sessions are never shared across runs.
type Dialer func(ctx context.Context) (imapx.Session, error)

// Deps are the pipeline's collaborators.
type Deps struct {
	Config    *config.Config
	Dial      Dialer
	Decoder   *decoder.Decoder
	Router    *router.Router
	Ledger    *ledger.DB
	Tickets   ticketapi.TicketStore
	Directory ticketapi.IdentityDirectory
	Logger    *slog.Logger
	Now       func() time.Time // defaults to time.Now
}

// Pipeline runs the orchestrators.
type Pipeline struct {
	cfg       *config.Config
	dial      Dialer
	decoder   *decoder.Decoder
	router    *router.Router
	ledger    *ledger.DB
	tickets   ticketapi.TicketStore
	directory ticketapi.IdentityDirectory
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		cfg:       deps.Config,
		dial:      deps.Dial,
		decoder:   deps.Decoder,
		router:    deps.Router,
		ledger:    deps.Ledger,
		tickets:   deps.Tickets,
		directory: deps.Directory,
		logger:    deps.Logger.With("component", "pipeline"),
		now:       now,
	}
}

// processMessage fetches, decodes, classifies and applies the outcome for
// one sequence number. The bool result says whether the message reached a
// terminal state (routed, deferred, or archived).
func (p *Pipeline) processMessage(ctx context.Context, sess imapx.Session, seq uint32) (bool, error) {
	raw, err := sess.FetchFull(seq)
	if err != nil {
		return false, err
	}
	if raw == nil {
		// Already gone, nothing to do.
		return false, nil
	}

	dec, err := p.decoder.Decode(raw)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}

	outcome, err := p.router.Classify(ctx, dec.FromAddr, dec.Subject)
	if err != nil {
		return false, err
	}
	return p.applyOutcome(ctx, sess, seq, dec, outcome)
}

// applyOutcome performs the side effects of a routing decision. Successful
// routes end with the message archived and any ledger record removed.
func (p *Pipeline) applyOutcome(ctx context.Context, sess imapx.Session, seq uint32, dec *decoder.Decoded, outcome router.Outcome) (bool, error) {
	mail := logx.Mail(dec.FromAddr, dec.Subject, dec.MessageID)

	switch outcome.Kind {
	case router.OutcomeSkip:
		return false, nil
	case router.OutcomeDefer:
		return p.deferMessage(ctx, sess, seq, dec, outcome.Reason)
	}

	identity := outcome.Identity
	ticketID := outcome.TicketID
	allowFallback := true

	switch outcome.Kind {
	case router.OutcomeRouteDefault:
		if p.cfg.DefaultTicketID == 0 {
			// Known sender, no ticket reference, nowhere to put it. This is
			// a configuration error, not a processing failure; the message
			// stays in the source folder.
			p.logger.Warn("no default ticket configured, leaving message in place", mail)
			return false, nil
		}
		ticketID = p.cfg.DefaultTicketID
		allowFallback = false
	case router.OutcomeCreateIdentity:
		first, last := senderNameParts(dec)
		created, err := p.directory.CreateLocked(ctx, router.NormalizeAddress(dec.FromAddr), first, last)
		if err != nil {
			// Message stays unrouted; the next run retries.
			return false, fmt.Errorf("create identity for %q: %w", dec.FromAddr, err)
		}
		identity = created
	}

	err := p.tickets.AttachComment(ctx, ticketID, identity, dec.Text, dec.Attachments)
	if errors.Is(err, ticketapi.ErrTicketNotFound) && allowFallback {
		if p.cfg.DefaultTicketID == 0 {
			p.logger.Warn("referenced ticket missing and no default ticket configured", slog.Int("ticket_id", ticketID), mail)
			return false, nil
		}
		p.logger.Info("referenced ticket missing, attaching to default", slog.Int("ticket_id", ticketID), mail)
		ticketID = p.cfg.DefaultTicketID
		err = p.tickets.AttachComment(ctx, ticketID, identity, dec.Text, dec.Attachments)
	}
	if err != nil {
		return false, fmt.Errorf("attach to ticket %d: %w", ticketID, err)
	}

	if err := sess.MoveOrCopyDelete(seq, p.cfg.ArchiveFolder); err != nil && !errors.Is(err, imapx.ErrMessageVanished) {
		return false, fmt.Errorf("archive: %w", err)
	}
	if dec.MessageID != "" {
		if err := p.ledger.DeleteRecord(ctx, dec.MessageID); err != nil {
			p.logger.Warn("failed to clear ledger record", "error", err, mail)
		}
	}

	p.logger.Info("message routed", slog.Int("ticket_id", ticketID), mail)
	return true, nil
}

// deferMessage moves the message to the deferred folder and upserts its
// ledger record.
func (p *Pipeline) deferMessage(ctx context.Context, sess imapx.Session, seq uint32, dec *decoder.Decoded, reason models.DeferReason) (bool, error) {
	mail := logx.Mail(dec.FromAddr, dec.Subject, dec.MessageID)

	if err := sess.MoveOrCopyDelete(seq, p.cfg.DeferredFolder); err != nil {
		if errors.Is(err, imapx.ErrMessageVanished) {
			return false, nil
		}
		return false, fmt.Errorf("defer: %w", err)
	}

	if dec.MessageID == "" {
		// No key to record under; the recheck's fallback window covers it.
		p.logger.Warn("deferred message has no message-id, skipping ledger record", mail)
		return true, nil
	}

	now := p.now()
	rec := &models.DeferralRecord{
		MessageID:  dec.MessageID,
		FromAddr:   router.NormalizeAddress(dec.FromAddr),
		Subject:    dec.Subject,
		Reason:     reason,
		DeferredAt: now,
		ExpiresAt:  now.Add(p.cfg.DeferLifetime()),
	}
	if err := p.ledger.UpsertRecord(ctx, rec); err != nil {
		// The move already happened and is irreversible; the recheck's
		// fallback window self-heals the missing record.
		p.logger.Error("failed to record deferral", "error", err, mail)
		return true, nil
	}

	p.logger.Info("message deferred", slog.String("reason", string(reason)), mail)
	return true, nil
}

// senderNameParts derives display-name parts for a minimal identity from
// the From header, falling back to the address local part.
func senderNameParts(dec *decoder.Decoded) (string, string) {
	name := strings.TrimSpace(dec.FromName)
	if name == "" {
		addr := router.NormalizeAddress(dec.FromAddr)
		if at := strings.IndexByte(addr, '@'); at > 0 {
			return addr[:at], ""
		}
		return addr, ""
	}
	if first, last, found := strings.Cut(name, " "); found {
		return first, strings.TrimSpace(last)
	}
	return name, ""
}

// sortDesc orders sequence numbers highest first. Moving a message shifts
// every higher sequence number down, so batches are always walked from the
// top.
func sortDesc(seqs []uint32) {
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })
}
