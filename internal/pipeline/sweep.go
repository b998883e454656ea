package pipeline

import "context"

// SweepExpired deletes every ledger record past its expiry and returns how
// many were removed. This is ledger-only cleanup: archiving the expired
// message itself happens in RecheckDeferred, which needs a live connection;
// the sweep does not.
func (p *Pipeline) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := p.ledger.DeleteExpired(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.logger.Info("sweep complete", "deleted", deleted)
	return deleted, nil
}
