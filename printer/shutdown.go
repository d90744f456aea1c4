package printer

import (
	"context"
	"time"
)

// shutdownLoop implements the Shutdown sub-loop: only QueryState is acted
// on from the operation channel; every 10s it probes is_ready() and, once
// true, runs boot() and transitions to Idle (spec.md §4.4).
func (p *Printer) shutdownLoop(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op, ok := <-p.operations:
			if !ok {
				return nil
			}
			if _, isQuery := op.(QueryState); isQuery {
				p.publish()
			}
			// Every other operation is discarded while Shutdown.
		case <-ticker.C:
			ready, err := p.client.IsReady(ctx)
			if err != nil {
				p.log.WithError(err).Debug("is_ready probe failed")
				continue
			}
			if !ready {
				continue
			}
			physical, err := p.client.Boot(ctx)
			if err != nil {
				p.log.WithError(err).Warn("boot() failed after is_ready; remaining in shutdown")
				continue
			}
			p.setState(IdleState{Physical: physical})
			p.publish()
			return nil
		}
	}
}
