package correlator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gomoncli/zadarma-bridge/internal/correlator"
	"github.com/gomoncli/zadarma-bridge/internal/store"
)

func newTestCorrelator(opts ...correlator.Option) (*correlator.Correlator, *store.Memory) {
	mem := store.NewMemory()
	return correlator.New(mem, opts...), mem
}

func fixedClock(t *time.Time) correlator.Clock {
	return func() time.Time { return *t }
}

func register(t *testing.T, c *correlator.Correlator, target, origin, kind string) correlator.PendingAction {
	t.Helper()
	rec, err := c.Register(context.Background(), target, origin, kind)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return rec
}

func findPending(t *testing.T, c *correlator.Correlator, target string) *correlator.PendingAction {
	t.Helper()
	rec, err := c.FindPendingFor(context.Background(), target)
	if err != nil {
		t.Fatalf("find pending for %s: %v", target, err)
	}
	return rec
}

// --- Register ---

func TestRegisterReturnsPendingRecord(t *testing.T) {
	c, _ := newTestCorrelator()

	rec := register(t, c, "0930063585", "380933297777", "vorota")

	if rec.ID == "" {
		t.Error("expected non-empty id")
	}
	if rec.Status != correlator.StatusPending {
		t.Errorf("expected status=pending, got %s", rec.Status)
	}
	if rec.TargetEndpoint != "0930063585" {
		t.Errorf("expected target=0930063585, got %s", rec.TargetEndpoint)
	}
	if rec.OriginIdentity != "380933297777" {
		t.Errorf("expected origin=380933297777, got %s", rec.OriginIdentity)
	}
	if rec.ActionKind != "vorota" {
		t.Errorf("expected kind=vorota, got %s", rec.ActionKind)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected non-zero created_at")
	}
	if rec.ResolvedAt != nil {
		t.Error("expected nil resolved_at while pending")
	}

	// Immediately visible to a lookup on the same endpoint.
	found := findPending(t, c, "0930063585")
	if found == nil {
		t.Fatal("expected to find pending record")
	}
	if found.ID != rec.ID {
		t.Errorf("expected id %s, got %s", rec.ID, found.ID)
	}
}

func TestRegisterIDsAreUnique(t *testing.T) {
	c, _ := newTestCorrelator()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		rec := register(t, c, "0930063585", "0933297777", "vorota")
		if seen[rec.ID] {
			t.Fatalf("duplicate id %s", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestRegisterStoreError(t *testing.T) {
	c, mem := newTestCorrelator()
	mem.SetError(store.ErrUnavailable)

	_, err := c.Register(context.Background(), "0930063585", "0933297777", "vorota")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// --- FindPendingFor ---

func TestFindPendingNoMatch(t *testing.T) {
	c, _ := newTestCorrelator()

	if rec := findPending(t, c, "0930063585"); rec != nil {
		t.Errorf("expected no match on empty store, got %+v", rec)
	}
}

func TestFindPendingNoCrossEndpointMatch(t *testing.T) {
	c, _ := newTestCorrelator()

	register(t, c, "0637442017", "0933297777", "hvirtka")

	if rec := findPending(t, c, "0930063585"); rec != nil {
		t.Errorf("expected no match for other endpoint, got %+v", rec)
	}
}

func TestFindPendingOldestWins(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestCorrelator(correlator.WithClock(fixedClock(&now)))

	first := register(t, c, "E", "caller-1", "vorota")
	now = now.Add(5 * time.Second)
	register(t, c, "E", "caller-2", "vorota")
	now = now.Add(5 * time.Second)

	got := findPending(t, c, "E")
	if got == nil {
		t.Fatal("expected a match")
	}
	if got.ID != first.ID {
		t.Errorf("expected oldest record %s, got %s", first.ID, got.ID)
	}
}

func TestFindPendingExpired(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, mem := newTestCorrelator(correlator.WithClock(fixedClock(&now)))

	register(t, c, "0930063585", "0933297777", "vorota")

	// One past the TTL: never matched, even though still stored.
	now = now.Add(correlator.DefaultTTL + time.Second)
	if rec := findPending(t, c, "0930063585"); rec != nil {
		t.Errorf("expected no match past TTL, got %+v", rec)
	}
	if len(mem.Records()) != 1 {
		t.Errorf("expected record still physically present, got %d records", len(mem.Records()))
	}
}

func TestFindPendingAtTTLBoundaryStillMatches(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestCorrelator(correlator.WithClock(fixedClock(&now)))

	register(t, c, "0930063585", "0933297777", "vorota")

	// now - created_at == TTL is inside the window.
	now = now.Add(correlator.DefaultTTL)
	if rec := findPending(t, c, "0930063585"); rec == nil {
		t.Error("expected match exactly at TTL")
	}
}

func TestFindPendingSkipsResolved(t *testing.T) {
	c, _ := newTestCorrelator()

	rec := register(t, c, "0930063585", "0933297777", "vorota")
	if _, err := c.Resolve(context.Background(), rec.ID, correlator.StatusConfirmed); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := findPending(t, c, "0930063585"); got != nil {
		t.Errorf("expected no match after resolve, got %+v", got)
	}
}

// --- Resolve ---

func TestResolveConfirms(t *testing.T) {
	c, mem := newTestCorrelator()

	rec := register(t, c, "0930063585", "0933297777", "vorota")

	ok, err := c.Resolve(context.Background(), rec.ID, correlator.StatusConfirmed)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok {
		t.Fatal("expected resolve to succeed")
	}

	stored := mem.Records()
	if len(stored) != 1 {
		t.Fatalf("expected 1 record, got %d", len(stored))
	}
	if stored[0].Status != correlator.StatusConfirmed {
		t.Errorf("expected status=confirmed, got %s", stored[0].Status)
	}
	if stored[0].ResolvedAt == nil {
		t.Error("expected resolved_at to be set")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	c, mem := newTestCorrelator()

	rec := register(t, c, "0930063585", "0933297777", "vorota")

	ok, err := c.Resolve(context.Background(), rec.ID, correlator.StatusConfirmed)
	if err != nil || !ok {
		t.Fatalf("first resolve: ok=%v err=%v", ok, err)
	}
	firstResolvedAt := *mem.Records()[0].ResolvedAt

	// Second resolve must not override the terminal state.
	ok, err = c.Resolve(context.Background(), rec.ID, correlator.StatusFailed)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if ok {
		t.Error("expected second resolve to return false")
	}

	stored := mem.Records()[0]
	if stored.Status != correlator.StatusConfirmed {
		t.Errorf("expected status to remain confirmed, got %s", stored.Status)
	}
	if !stored.ResolvedAt.Equal(firstResolvedAt) {
		t.Errorf("expected resolved_at unchanged, got %s", stored.ResolvedAt)
	}
}

func TestResolveUnknownID(t *testing.T) {
	c, _ := newTestCorrelator()

	ok, err := c.Resolve(context.Background(), "no-such-id", correlator.StatusConfirmed)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Error("expected resolve of unknown id to return false")
	}
}

// --- Remove ---

func TestRemoveAfterDispatchRejection(t *testing.T) {
	c, mem := newTestCorrelator()

	rec := register(t, c, "0930063585", "0933297777", "vorota")
	if err := c.Remove(context.Background(), rec.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := findPending(t, c, "0930063585"); got != nil {
		t.Errorf("expected no pending record after remove, got %+v", got)
	}
	if len(mem.Records()) != 0 {
		t.Errorf("expected empty store, got %d records", len(mem.Records()))
	}
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	c, mem := newTestCorrelator()

	register(t, c, "0930063585", "0933297777", "vorota")
	if err := c.Remove(context.Background(), "no-such-id"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(mem.Records()) != 1 {
		t.Errorf("expected record untouched, got %d records", len(mem.Records()))
	}
}

// --- Prune & lazy expiry ---

func TestPruneExpiresStalePending(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, mem := newTestCorrelator(
		correlator.WithClock(fixedClock(&now)),
		correlator.WithTTL(120*time.Second),
		correlator.WithMaxAge(300*time.Second),
	)

	register(t, c, "0930063585", "0933297777", "vorota")

	now = now.Add(130 * time.Second)
	if err := c.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	stored := mem.Records()
	if len(stored) != 1 {
		t.Fatalf("expected 1 record, got %d", len(stored))
	}
	if stored[0].Status != correlator.StatusExpired {
		t.Errorf("expected status=expired, got %s", stored[0].Status)
	}
	if stored[0].ResolvedAt == nil {
		t.Error("expected resolved_at set on expiry")
	}
}

func TestPruneDropsRecordsPastMaxAge(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, mem := newTestCorrelator(
		correlator.WithClock(fixedClock(&now)),
		correlator.WithMaxAge(300*time.Second),
	)

	old := register(t, c, "0930063585", "0933297777", "vorota")
	now = now.Add(301 * time.Second)
	fresh := register(t, c, "0637442017", "0933297777", "hvirtka")

	stored := mem.Records()
	if len(stored) != 1 {
		t.Fatalf("expected old record pruned on register, got %d records", len(stored))
	}
	if stored[0].ID == old.ID {
		t.Error("expected old record gone")
	}
	if stored[0].ID != fresh.ID {
		t.Error("expected fresh record kept")
	}
}

func TestExpiredRecordCannotBeResolvedBack(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c, mem := newTestCorrelator(correlator.WithClock(fixedClock(&now)))

	rec := register(t, c, "0930063585", "0933297777", "vorota")

	now = now.Add(correlator.DefaultTTL + time.Second)
	if err := c.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	ok, err := c.Resolve(context.Background(), rec.ID, correlator.StatusConfirmed)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Error("expected resolve of expired record to return false")
	}
	if mem.Records()[0].Status != correlator.StatusExpired {
		t.Errorf("expected status to remain expired, got %s", mem.Records()[0].Status)
	}
}

// --- Concurrency ---

func TestConcurrentRegistersAllPersist(t *testing.T) {
	c, mem := newTestCorrelator()

	endpoints := []string{"0930063585", "0637442017"}
	var wg sync.WaitGroup
	errs := make(chan error, len(endpoints))

	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if _, err := c.Register(context.Background(), target, "0933297777", "vorota"); err != nil {
				errs <- err
			}
		}(endpoint)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("register: %v", err)
	}

	if got := len(mem.Records()); got != 2 {
		t.Fatalf("expected both records persisted, got %d", got)
	}
	for _, endpoint := range endpoints {
		if findPending(t, c, endpoint) == nil {
			t.Errorf("expected pending record for %s", endpoint)
		}
	}
}
