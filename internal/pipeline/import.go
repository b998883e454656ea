package pipeline

import (
	"context"
)

// Import drains unseen messages from the inbox folder. A limit above zero
// caps how many messages are handled this run. Per-message failures are
// logged and skipped; only a failure to establish or use the session aborts
// the run. Returns how many messages reached a terminal state.
func (p *Pipeline) Import(ctx context.Context, limit int) (int, error) {
	sess, err := p.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	total, err := sess.SelectFolder(p.cfg.InboxFolder)
	if err != nil {
		return 0, err
	}

	seqs, err := sess.SearchUnseen()
	if err != nil {
		return 0, err
	}
	sortDesc(seqs)
	if limit > 0 && len(seqs) > limit {
		seqs = seqs[:limit]
	}

	p.logger.Info("import starting", "folder", p.cfg.InboxFolder, "unseen", len(seqs), "total", total)

	processed := 0
	for _, seq := range seqs {
		ok, err := p.processMessage(ctx, sess, seq)
		if err != nil {
			p.logger.Error("message processing failed", "seq", seq, "error", err)
			continue
		}
		if ok {
			processed++
		}
	}

	p.logger.Info("import complete", "processed", processed)
	return processed, nil
}
