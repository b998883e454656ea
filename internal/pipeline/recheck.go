package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/avreyn/mailtriage/internal/decoder"
	"github.com/avreyn/mailtriage/internal/imapx"
	"github.com/avreyn/mailtriage/internal/ledger"
	"github.com/avreyn/mailtriage/internal/logx"
	"github.com/avreyn/mailtriage/internal/router"
)

// RecheckStats summarizes one recheck run.
type RecheckStats struct {
	Processed int // deferred messages that became routable and were archived
	Expired   int // deferred messages past expiry that were archived
}

// RecheckDeferred re-evaluates every message in the deferred folder.
// Expired messages are archived and their records dropped; messages whose
// sender has become resolvable are routed; everything else stays put.
// A missing deferred folder means there is nothing to do.
func (p *Pipeline) RecheckDeferred(ctx context.Context) (RecheckStats, error) {
	var stats RecheckStats

	sess, err := p.dial(ctx)
	if err != nil {
		return stats, err
	}
	defer sess.Close()

	total, err := sess.SelectFolder(p.cfg.DeferredFolder)
	if err != nil {
		if errors.Is(err, imapx.ErrFolderNotFound) {
			p.logger.Debug("deferred folder does not exist, nothing to recheck")
			return stats, nil
		}
		return stats, err
	}

	seqs, err := sess.SearchAll()
	if err != nil {
		return stats, err
	}
	sortDesc(seqs)

	p.logger.Info("recheck starting", "folder", p.cfg.DeferredFolder, "messages", total)

	for _, seq := range seqs {
		p.recheckOne(ctx, sess, seq, &stats)
	}

	p.logger.Info("recheck complete", "processed", stats.Processed, "expired", stats.Expired)
	return stats, nil
}

func (p *Pipeline) recheckOne(ctx context.Context, sess imapx.Session, seq uint32, stats *RecheckStats) {
	raw, err := sess.FetchFull(seq)
	if err != nil {
		p.logger.Error("failed to fetch deferred message", "seq", seq, "error", err)
		return
	}
	if raw == nil {
		return
	}

	dec, err := p.decoder.Decode(raw)
	if err != nil {
		p.logger.Error("failed to parse deferred message", "seq", seq, "error", err)
		return
	}
	mail := logx.Mail(dec.FromAddr, dec.Subject, dec.MessageID)

	if !p.now().Before(p.deferralExpiry(ctx, dec)) {
		if err := sess.MoveOrCopyDelete(seq, p.cfg.ArchiveFolder); err != nil && !errors.Is(err, imapx.ErrMessageVanished) {
			p.logger.Error("failed to archive expired message", "seq", seq, "error", err, mail)
			return
		}
		if dec.MessageID != "" {
			if err := p.ledger.DeleteRecord(ctx, dec.MessageID); err != nil {
				p.logger.Warn("failed to clear expired record", "error", err, mail)
			}
		}
		stats.Expired++
		p.logger.Info("expired message archived", mail)
		return
	}

	outcome, err := p.router.Classify(ctx, dec.FromAddr, dec.Subject)
	if err != nil {
		p.logger.Error("failed to classify deferred message", "seq", seq, "error", err)
		return
	}
	if outcome.Kind == router.OutcomeDefer || outcome.Kind == router.OutcomeSkip {
		// Still unresolved; message and record stay untouched.
		return
	}

	ok, err := p.applyOutcome(ctx, sess, seq, dec, outcome)
	if err != nil {
		p.logger.Error("failed to route deferred message", "seq", seq, "error", err)
		return
	}
	if ok {
		stats.Processed++
	}
}

// deferralExpiry returns the ledger record's expiry or, for messages the
// ledger never saw, a fallback window derived from the message's own date
// plus the configured lifetime. That keeps the recheck self-healing against
// a lost ledger entry.
func (p *Pipeline) deferralExpiry(ctx context.Context, dec *decoder.Decoded) time.Time {
	if dec.MessageID != "" {
		rec, err := p.ledger.GetRecord(ctx, dec.MessageID)
		if err == nil {
			return rec.ExpiresAt
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			p.logger.Warn("ledger lookup failed", "message_id", dec.MessageID, "error", err)
		}
	}
	base := dec.Date
	if base.IsZero() {
		base = p.now()
	}
	return base.Add(p.cfg.DeferLifetime())
}
