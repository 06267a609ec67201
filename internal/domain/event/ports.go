package event

import "context"

// Filter selects which events a subscriber receives. Zero-value fields match
// everything.
type Filter struct {
	Kinds       []Kind
	RouteID     string
	MinSeverity Severity
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(e Event) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.RouteID != "" && e.RouteID != f.RouteID {
		return false
	}
	if f.MinSeverity != "" && e.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	return true
}

// Publisher is the write side of the event bus. Publish never blocks.
type Publisher interface {
	Publish(e Event)
}

// Subscription is a live event feed. Events arrive on C in FIFO order.
type Subscription interface {
	C() <-chan Event
	ID() int
}

// Bus is the in-process typed pub/sub (C5).
type Bus interface {
	Publisher
	Subscribe(filter Filter) Subscription
	Unsubscribe(sub Subscription)
}

// ListQuery filters the persisted event log.
type ListQuery struct {
	Kind       Kind
	Severity   Severity
	RouteID    string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Repository persists the event log.
type Repository interface {
	Save(ctx context.Context, e Event) error
	FindByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, q ListQuery) ([]Event, error)
	MarkResolved(ctx context.Context, id string) error
}
