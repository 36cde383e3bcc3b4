// Package correlator tracks dispatched physical actions (gate and door
// callbacks) and matches later provider events against them.
//
// Every invariant lives here: record ids are unique, a lookup picks the
// oldest unexpired pending record for an endpoint, and a record's status
// only ever moves forward out of pending. The backing store is a dumb
// persisted collection; each webhook delivery runs in its own request
// handler, so all coordination happens through the store's locking.
package correlator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Default matching window and retention, overridable per instance.
const (
	DefaultTTL    = 120 * time.Second
	DefaultMaxAge = 300 * time.Second
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Store persists the pending-action collection. View runs fn with a
// consistent snapshot under a shared lock; Update runs fn under an
// exclusive lock spanning the whole read-modify-write and persists the
// returned collection atomically.
type Store interface {
	View(ctx context.Context, fn func(records []PendingAction) error) error
	Update(ctx context.Context, fn func(records []PendingAction) ([]PendingAction, error)) error
}

// Correlator exposes register/lookup/resolve/prune over a Store.
type Correlator struct {
	store  Store
	ttl    time.Duration
	maxAge time.Duration
	clock  Clock
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(corr *Correlator) { corr.clock = c }
}

// WithTTL sets the matching window for pending records.
func WithTTL(d time.Duration) Option {
	return func(corr *Correlator) { corr.ttl = d }
}

// WithMaxAge sets the retention horizon for pruning.
func WithMaxAge(d time.Duration) Option {
	return func(corr *Correlator) { corr.maxAge = d }
}

// New creates a Correlator over the given store.
func New(store Store, opts ...Option) *Correlator {
	c := &Correlator{
		store:  store,
		ttl:    DefaultTTL,
		maxAge: DefaultMaxAge,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register creates a pending record for a just-dispatched action and
// persists it. Failure means the action proceeds untracked; it is never
// a reason to abort the dispatch itself.
func (c *Correlator) Register(ctx context.Context, targetEndpoint, originIdentity, actionKind string) (PendingAction, error) {
	rec := PendingAction{
		ID:             uuid.NewString(),
		TargetEndpoint: targetEndpoint,
		OriginIdentity: originIdentity,
		ActionKind:     actionKind,
		CreatedAt:      c.clock(),
		Status:         StatusPending,
	}

	err := c.store.Update(ctx, func(records []PendingAction) ([]PendingAction, error) {
		records = c.pruned(records)
		return append(records, rec), nil
	})
	if err != nil {
		return PendingAction{}, err
	}
	return rec, nil
}

// FindPendingFor returns the oldest unexpired pending record for the
// endpoint, or nil when there is nothing to correlate. A miss is an
// expected outcome, not an error.
func (c *Correlator) FindPendingFor(ctx context.Context, targetEndpoint string) (*PendingAction, error) {
	var match *PendingAction
	now := c.clock()

	err := c.store.View(ctx, func(records []PendingAction) error {
		for i := range records {
			rec := records[i]
			if rec.TargetEndpoint != targetEndpoint || rec.Status != StatusPending {
				continue
			}
			if now.Sub(rec.CreatedAt) > c.ttl {
				continue
			}
			// Oldest-first: never resolve a newer request while an
			// older one is still waiting.
			if match == nil || rec.CreatedAt.Before(match.CreatedAt) {
				m := rec
				match = &m
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Resolve moves the record with the given id into a terminal status.
// It returns false when the id is unknown or the record is already
// terminal. Both are benign: confirmations can arrive duplicated, out of
// order, or after pruning.
func (c *Correlator) Resolve(ctx context.Context, id string, outcome Status) (bool, error) {
	resolved := false

	err := c.store.Update(ctx, func(records []PendingAction) ([]PendingAction, error) {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			if records[i].Status.Terminal() {
				return records, nil
			}
			now := c.clock()
			records[i].Status = outcome
			records[i].ResolvedAt = &now
			resolved = true
			break
		}
		return c.pruned(records), nil
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// Remove deletes the record with the given id. Used when the dispatch
// request itself was rejected and no confirmation will ever arrive.
func (c *Correlator) Remove(ctx context.Context, id string) error {
	return c.store.Update(ctx, func(records []PendingAction) ([]PendingAction, error) {
		kept := records[:0]
		for _, rec := range records {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}
		return kept, nil
	})
}

// Prune expires stale pending records and drops everything older than
// the retention horizon. Register and Resolve call this opportunistically;
// it is also safe to invoke on its own.
func (c *Correlator) Prune(ctx context.Context) error {
	return c.store.Update(ctx, func(records []PendingAction) ([]PendingAction, error) {
		return c.pruned(records), nil
	})
}

// pruned marks over-TTL pending records expired and removes records older
// than maxAge regardless of status. Expiry is lazy: there is no background
// sweep between webhook deliveries.
func (c *Correlator) pruned(records []PendingAction) []PendingAction {
	now := c.clock()
	kept := records[:0]
	for _, rec := range records {
		age := now.Sub(rec.CreatedAt)
		if age > c.maxAge {
			continue
		}
		if rec.Status == StatusPending && age > c.ttl {
			resolvedAt := now
			rec.Status = StatusExpired
			rec.ResolvedAt = &resolvedAt
		}
		kept = append(kept, rec)
	}
	return kept
}
