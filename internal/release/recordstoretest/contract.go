// Package recordstoretest provides contract tests for
// [release.RecordStore] implementations.
package recordstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relctl/internal/release"
)

// Factory creates a fresh [release.RecordStore] for each test.
type Factory func(t *testing.T) release.RecordStore

// Run exercises the [release.RecordStore] contract.
func Run(t *testing.T, factory Factory) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sample := func(id string) release.Record {
		return release.Record{
			ID:          id,
			Namespace:   "shop-production",
			Environment: release.Environment{Kind: release.EnvProduction},
			Spec: release.Spec{
				App:             "shop",
				Environment:     release.Environment{Kind: release.EnvProduction},
				Namespace:       "shop-production",
				ImageRefs:       map[string]release.ImageRef{"backend": {Repository: "api", Tag: "v3"}},
				Replicas:        map[string]int32{"backend": 2},
				HealthChecks:    map[string]release.HealthCheck{"backend": {Path: "/api/health"}},
				DependencyOrder: []string{"backend"},
			},
			State:     release.StatePending,
			StartedAt: started,
		}
	}

	finish := func(rec release.Record, state release.State) release.Record {
		rec.State = state
		rec.Outcome = release.OutcomeFor(state)
		rec.FinishedAt = started.Add(time.Minute)
		return rec
	}

	t.Run("BeginAndGet", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		if _, err := store.Begin(ctx, sample("r1")); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		got, err := store.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != release.StatePending {
			t.Errorf("State = %q, want %q", got.State, release.StatePending)
		}
		if got.Spec.ImageRefs["backend"].Tag != "v3" {
			t.Errorf("Spec snapshot not preserved: %+v", got.Spec.ImageRefs)
		}
		if got.Environment.Kind != release.EnvProduction {
			t.Errorf("Environment = %v, want production", got.Environment)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "missing")
		if !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("BeginRejectsSecondInFlight", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		if _, err := store.Begin(ctx, sample("r1")); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		_, err := store.Begin(ctx, sample("r2"))
		if !errors.Is(err, release.ErrReleaseInProgress) {
			t.Fatalf("second Begin: got %v, want ErrReleaseInProgress", err)
		}
		if _, err := store.Get(ctx, "r2"); !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("rejected release must not be recorded, Get: %v", err)
		}
	})

	t.Run("BeginAllowsOtherNamespace", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		if _, err := store.Begin(ctx, sample("r1")); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		other := sample("r2")
		other.Namespace = "shop-staging"
		if _, err := store.Begin(ctx, other); err != nil {
			t.Fatalf("Begin other namespace: %v", err)
		}
	})

	t.Run("BeginLinksCurrentPointer", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		first := sample("r1")
		first.PreviousGoodID = "ghost"
		got, err := store.Begin(ctx, first)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if got.PreviousGoodID != "" {
			t.Fatalf("PreviousGoodID of first release = %q, want empty", got.PreviousGoodID)
		}
		if err := store.Promote(ctx, finish(got, release.StateSucceeded)); err != nil {
			t.Fatalf("Promote: %v", err)
		}

		// The caller's stale view of the current release is ignored.
		second := sample("r2")
		second.PreviousGoodID = "ghost"
		got, err = store.Begin(ctx, second)
		if err != nil {
			t.Fatalf("Begin second: %v", err)
		}
		if got.PreviousGoodID != "r1" {
			t.Fatalf("PreviousGoodID = %q, want r1", got.PreviousGoodID)
		}
		if err := store.Promote(ctx, finish(got, release.StateSucceeded)); err != nil {
			t.Fatalf("Promote second: %v", err)
		}

		third := sample("r3")
		third.PreviousGoodID = "r1"
		if _, err := store.Begin(ctx, third); err != nil {
			t.Fatalf("Begin third: %v", err)
		}
		stored, err := store.Get(ctx, "r3")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if stored.PreviousGoodID != "r2" {
			t.Errorf("stored PreviousGoodID = %q, want r2", stored.PreviousGoodID)
		}
	})

	t.Run("UpdateThenFinalize", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		rec := sample("r1")
		if _, err := store.Begin(ctx, rec); err != nil {
			t.Fatalf("Begin: %v", err)
		}

		rec.State = release.StateApplying
		if err := store.Update(ctx, rec); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if inflight, err := store.InFlight(ctx, rec.Namespace); err != nil || inflight.ID != "r1" {
			t.Fatalf("InFlight = %v, %v; want r1", inflight.ID, err)
		}

		failed := finish(rec, release.StateFailed)
		failed.ErrorKind = release.KindUnhealthy
		failed.Error = "backend unhealthy"
		if err := store.Update(ctx, failed); err != nil {
			t.Fatalf("Update terminal: %v", err)
		}

		if _, err := store.InFlight(ctx, rec.Namespace); !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("InFlight after finalize: got %v, want ErrNotFound", err)
		}
		got, _ := store.Get(ctx, "r1")
		if got.Outcome != release.OutcomeFailed || got.ErrorKind != release.KindUnhealthy {
			t.Errorf("got outcome %q kind %q", got.Outcome, got.ErrorKind)
		}

		again := failed
		again.Error = "rewritten"
		if err := store.Update(ctx, again); !errors.Is(err, release.ErrRecordFinalized) {
			t.Fatalf("Update finalized: got %v, want ErrRecordFinalized", err)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		store := factory(t)
		err := store.Update(context.Background(), sample("missing"))
		if !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("PromoteMovesCurrent", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		if _, err := store.Current(ctx, "shop-production"); !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("Current on empty namespace: got %v, want ErrNotFound", err)
		}

		first := sample("r1")
		if _, err := store.Begin(ctx, first); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if err := store.Promote(ctx, finish(first, release.StateSucceeded)); err != nil {
			t.Fatalf("Promote: %v", err)
		}

		second, err := store.Begin(ctx, sample("r2"))
		if err != nil {
			t.Fatalf("Begin second: %v", err)
		}
		if second.PreviousGoodID != "r1" {
			t.Fatalf("PreviousGoodID = %q, want r1", second.PreviousGoodID)
		}
		if cur, _ := store.Current(ctx, "shop-production"); cur.ID != "r1" {
			t.Fatalf("Current while r2 in flight = %q, want r1", cur.ID)
		}

		rolled := finish(second, release.StateRolledBack)
		if err := store.Update(ctx, rolled); err != nil {
			t.Fatalf("Update rolled back: %v", err)
		}
		if cur, _ := store.Current(ctx, "shop-production"); cur.ID != "r1" {
			t.Fatalf("Current after rollback = %q, want r1", cur.ID)
		}

		third, err := store.Begin(ctx, sample("r3"))
		if err != nil {
			t.Fatalf("Begin third: %v", err)
		}
		if err := store.Promote(ctx, finish(third, release.StateSucceeded)); err != nil {
			t.Fatalf("Promote third: %v", err)
		}
		cur, err := store.Current(ctx, "shop-production")
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if cur.ID != "r3" || cur.PreviousGoodID != "r1" {
			t.Errorf("Current = %q (prev %q), want r3 (prev r1)", cur.ID, cur.PreviousGoodID)
		}
	})

	t.Run("PromoteRequiresSuccess", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		rec := sample("r1")
		if _, err := store.Begin(ctx, rec); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		err := store.Promote(ctx, finish(rec, release.StateFailed))
		if !errors.Is(err, release.ErrInvalidRecord) {
			t.Fatalf("Promote failed record: got %v, want ErrInvalidRecord", err)
		}
		if _, err := store.Current(ctx, rec.Namespace); !errors.Is(err, release.ErrNotFound) {
			t.Fatalf("Current: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListOldestFirst", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		for i, id := range []string{"a", "b", "c"} {
			rec := sample(id)
			rec.StartedAt = started.Add(time.Duration(i) * time.Hour)
			if _, err := store.Begin(ctx, rec); err != nil {
				t.Fatalf("Begin %s: %v", id, err)
			}
			if err := store.Update(ctx, finish(rec, release.StateFailed)); err != nil {
				t.Fatalf("Update %s: %v", id, err)
			}
		}
		list, err := store.List(ctx, "shop-production")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
			ids := make([]string, 0, len(list))
			for _, r := range list {
				ids = append(ids, r.ID)
			}
			t.Fatalf("List = %v, want [a b c]", ids)
		}
		empty, err := store.List(ctx, "nowhere")
		if err != nil || len(empty) != 0 {
			t.Fatalf("List empty namespace = %v, %v", empty, err)
		}
	})

	t.Run("ConcurrentBeginSingleWinner", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := store.Begin(ctx, sample(id))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, release.ErrReleaseInProgress):
					conflicts++
				default:
					t.Errorf("Begin %s: unexpected error %v", id, err)
				}
			}(id)
		}
		wg.Wait()

		if wins != 1 || conflicts != 5 {
			t.Fatalf("wins = %d conflicts = %d, want 1 and 5", wins, conflicts)
		}
	})
}
