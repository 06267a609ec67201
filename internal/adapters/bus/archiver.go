package bus

import (
	"context"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/event"
)

// Archiver drains the bus into the persistent event log so the API can serve
// history after the fact.
type Archiver struct {
	bus  event.Bus
	repo event.Repository
}

// NewArchiver creates the bus-to-repository bridge.
func NewArchiver(bus event.Bus, repo event.Repository) *Archiver {
	return &Archiver{bus: bus, repo: repo}
}

// Run blocks until the context is cancelled, persisting every published
// event. Save failures are logged and skipped; the feed must keep moving.
func (a *Archiver) Run(ctx context.Context) error {
	sub := a.bus.Subscribe(event.Filter{})
	defer a.bus.Unsubscribe(sub)

	logger := common.LoggerFromContext(ctx)
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			// Save upserts, so an event already persisted inside a route
			// commit transaction is simply rewritten with the same state.
			if err := a.repo.Save(ctx, ev); err != nil {
				logger.Log("ERROR", "Failed to persist event", map[string]interface{}{
					"event_id": ev.ID,
					"kind":     string(ev.Kind),
					"error":    err.Error(),
				})
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
