package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"relctl/internal/health"
	"relctl/internal/prereq"
	"relctl/internal/release"
	"relctl/internal/render"
	"relctl/internal/store/memory"
)

const namespace = "shop-production"

func productionSpec(tag string) release.Spec {
	return release.Spec{
		App:         "shop",
		Environment: release.Environment{Kind: release.EnvProduction},
		ImageRefs: map[string]release.ImageRef{
			"database": {Repository: "pg", Tag: "16.1"},
			"backend":  {Repository: "api", Tag: tag},
			"frontend": {Repository: "web", Tag: tag},
		},
		HealthChecks: map[string]release.HealthCheck{
			"database": {MaxAttempts: 5},
			"backend":  {Path: "/api/health", ExpectedStatus: 200, MaxAttempts: 5},
			"frontend": {Path: "/", ExpectedStatus: 200, MaxAttempts: 5},
		},
		DependencyOrder: []string{"database", "backend", "frontend"},
	}
}

type fixture struct {
	rec       *recorder
	client    *mockClient
	gate      *mockGate
	installer *mockInstaller
	store     *memory.RecordStore
	orch      *Orchestrator

	mu          sync.Mutex
	transitions []release.State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &recorder{}
	f := &fixture{
		rec:       rec,
		client:    &mockClient{rec: rec},
		gate:      &mockGate{rec: rec},
		installer: &mockInstaller{rec: rec},
		store:     memory.NewRecordStore(),
	}
	f.orch = New(Config{
		App: "shop",
		Profiles: map[release.EnvironmentKind]release.Profile{
			release.EnvProduction: {Replicas: map[string]int32{"database": 1, "backend": 3, "frontend": 2}},
		},
		Prerequisites: []release.Prerequisite{{Name: "ingress-nginx", Version: "4.10.0"}},
		OnTransition: func(r release.Record) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.transitions = append(f.transitions, r.State)
		},
	}, Dependencies{Client: f.client, Installer: f.installer, Gate: f.gate, Store: f.store})

	ids := 0
	f.orch.newID = func() string {
		ids++
		return "rel-" + string(rune('0'+ids))
	}
	return f
}

func (f *fixture) states() []release.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]release.State(nil), f.transitions...)
}

// succeedOnce runs a healthy release and resets the call log.
func (f *fixture) succeedOnce(t *testing.T, tag string) *release.Record {
	t.Helper()
	rec, err := f.orch.Run(context.Background(), productionSpec(tag))
	require.NoError(t, err)
	require.Equal(t, release.OutcomeSucceeded, rec.Outcome)
	f.rec.mu.Lock()
	f.rec.events = nil
	f.rec.mu.Unlock()
	f.client.mu.Lock()
	f.client.images = nil
	f.client.mu.Unlock()
	f.mu.Lock()
	f.transitions = nil
	f.mu.Unlock()
	return rec
}

func TestRun_AllHealthy(t *testing.T) {
	f := newFixture(t)

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateSucceeded, rec.State)
	assert.Equal(t, release.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, namespace, rec.Namespace)
	assert.Empty(t, rec.PreviousGoodID)
	assert.Empty(t, rec.ErrorKind)
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
	assert.Equal(t, int32(3), rec.Spec.Replicas["backend"])

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, current.ID)
	assert.Equal(t, release.OutcomeSucceeded, current.Outcome)

	assert.Equal(t, []string{
		"prerequisites",
		"apply:database", "healthy:database",
		"apply:backend", "healthy:backend",
		"apply:frontend", "healthy:frontend",
	}, f.rec.list())

	assert.Equal(t, []release.State{
		release.StatePending,
		release.StatePrerequisitesReady,
		release.StateApplying, release.StateHealthChecking,
		release.StateApplying, release.StateHealthChecking,
		release.StateApplying, release.StateHealthChecking,
		release.StateSucceeded,
	}, f.states())
}

func TestRun_AppliesNextServiceOnlyAfterGate(t *testing.T) {
	f := newFixture(t)
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		// database is still being gated; backend must not have been applied
		if target.Service == "database" {
			assert.Equal(t, -1, f.rec.index("apply:backend"))
		}
		return nil
	}

	_, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Less(t, f.rec.index("healthy:database"), f.rec.index("apply:backend"))
	assert.Less(t, f.rec.index("healthy:backend"), f.rec.index("apply:frontend"))
}

func TestRun_GateTargets(t *testing.T) {
	f := newFixture(t)
	var targets []health.Target
	var checks []release.HealthCheck
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		targets = append(targets, target)
		checks = append(checks, check)
		return nil
	}

	_, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	require.Len(t, targets, 3)
	assert.Equal(t, health.Target{Service: "backend", Namespace: namespace, Workload: "shop-backend", Port: release.DefaultServicePort}, targets[1])
	assert.Equal(t, "/api/health", checks[1].Path)
	assert.Equal(t, release.DefaultTimeoutSeconds, checks[0].TimeoutSeconds)
}

func TestRun_FirstReleaseUnhealthyFails(t *testing.T) {
	f := newFixture(t)
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		if target.Service == "backend" {
			return unhealthy("backend")
		}
		return nil
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateFailed, rec.State)
	assert.Equal(t, release.OutcomeFailed, rec.Outcome)
	assert.Equal(t, release.KindUnhealthy, rec.ErrorKind)
	assert.Contains(t, rec.Error, "service backend unhealthy after 5 attempts")
	assert.Contains(t, rec.RollbackError, "rollback impossible")

	assert.Equal(t, -1, f.rec.index("apply:frontend"))
	assert.Equal(t, -1, f.rec.index("prune:"+namespace))

	_, err = f.orch.Current(context.Background(), namespace)
	assert.ErrorIs(t, err, release.ErrNotFound)

	stored, err := f.orch.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, *rec, *stored)
}

func TestRun_UnhealthyRollsBackToPreviousGood(t *testing.T) {
	f := newFixture(t)
	good := f.succeedOnce(t, "v2")

	failed := false
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		if target.Service == "backend" && !failed {
			failed = true
			return unhealthy("backend")
		}
		return nil
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateRolledBack, rec.State)
	assert.Equal(t, release.OutcomeRolledBack, rec.Outcome)
	assert.Equal(t, release.KindUnhealthy, rec.ErrorKind)
	assert.Equal(t, good.ID, rec.PreviousGoodID)
	assert.Empty(t, rec.RollbackError)

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, *good, *current)

	assert.NotContains(t, f.client.appliedImages(), "web:v3")
	assert.Equal(t, []string{"pg:16.1", "api:v3", "pg:16.1", "api:v2", "web:v2"}, f.client.appliedImages())

	assert.Equal(t, []string{
		"prerequisites",
		"apply:database", "healthy:database",
		"apply:backend", "unhealthy:backend",
		"apply:database", "healthy:database",
		"apply:backend", "healthy:backend",
		"apply:frontend", "healthy:frontend",
		"prune:" + namespace,
	}, f.rec.list())
	require.Len(t, f.client.pruned, 1)
	assert.Len(t, f.client.pruned[0], 9)

	assert.Equal(t, release.StateRollingBack, f.states()[len(f.states())-2])

	history, err := f.orch.History(context.Background(), namespace)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, release.OutcomeSucceeded, history[0].Outcome)
	assert.Equal(t, release.OutcomeRolledBack, history[1].Outcome)
}

func TestRun_ApplyErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	good := f.succeedOnce(t, "v2")

	failed := false
	f.client.applyFunc = func(ctx context.Context, service string, objs []render.Object) error {
		if service == "backend" && !failed {
			failed = true
			return errors.New("admission webhook denied the request")
		}
		return nil
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.OutcomeRolledBack, rec.Outcome)
	assert.Equal(t, release.KindApply, rec.ErrorKind)
	assert.Equal(t, "apply backend: admission webhook denied the request", rec.Error)
	assert.Equal(t, good.ID, rec.PreviousGoodID)
	// the failed apply is never gated
	assert.Equal(t, []string{"healthy:database", "healthy:database", "healthy:backend", "healthy:frontend"}, healthEvents(f.rec.list()))
}

func TestRun_RollbackFailureFails(t *testing.T) {
	f := newFixture(t)
	good := f.succeedOnce(t, "v2")

	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		if target.Service == "backend" {
			return unhealthy("backend")
		}
		return nil
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateFailed, rec.State)
	assert.Equal(t, release.KindRollbackImpossible, rec.ErrorKind)
	assert.Contains(t, rec.Error, "service backend unhealthy")
	assert.Contains(t, rec.RollbackError, "rollback impossible")
	assert.Equal(t, -1, f.rec.index("apply:frontend"))
	assert.Equal(t, -1, f.rec.index("prune:"+namespace))

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, good.ID, current.ID)
}

func TestRun_PruneFailureFails(t *testing.T) {
	f := newFixture(t)
	f.succeedOnce(t, "v2")

	f.client.applyFunc = func(ctx context.Context, service string, objs []render.Object) error {
		if service == "frontend" && objs[0].Resource.GetLabels()[render.LabelVersion] == "v3" {
			return errors.New("quota exceeded")
		}
		return nil
	}
	f.client.pruneFunc = func(namespace string, keep []render.ObjectRef) error {
		return errors.New("forbidden")
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.OutcomeFailed, rec.Outcome)
	assert.Contains(t, rec.RollbackError, "failed to prune: forbidden")
}

func TestRun_PrerequisiteFailure(t *testing.T) {
	f := newFixture(t)
	f.succeedOnce(t, "v2")
	f.installer.ensureFunc = func(ctx context.Context, set []release.Prerequisite) ([]prereq.Installed, error) {
		return nil, &release.PrerequisiteError{Name: "ingress-nginx", Cause: errors.New("chart not found")}
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateFailed, rec.State)
	assert.Equal(t, release.KindPrerequisite, rec.ErrorKind)
	assert.Equal(t, "prerequisite ingress-nginx: chart not found", rec.Error)
	assert.Empty(t, rec.RollbackError)
	assert.Equal(t, []string{"prerequisites"}, f.rec.list())
	assert.Equal(t, []release.State{release.StatePending, release.StateFailed}, f.states())
}

func TestRun_CancelledDuringGate(t *testing.T) {
	f := newFixture(t)
	good := f.succeedOnce(t, "v2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var rollbackCtxErr error
	f.gate.awaitFunc = func(gctx context.Context, target health.Target, check release.HealthCheck) error {
		if ctx.Err() != nil {
			rollbackCtxErr = gctx.Err()
			return nil
		}
		if target.Service == "backend" {
			cancel()
			return gctx.Err()
		}
		return nil
	}

	rec, err := f.orch.Run(ctx, productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, release.StateRolledBack, rec.State)
	assert.Equal(t, release.KindCancelled, rec.ErrorKind)
	assert.NoError(t, rollbackCtxErr)

	stored, err := f.store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, release.StateRolledBack, stored.State)

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, good.ID, current.ID)
}

func TestRun_CancelledFirstReleaseFails(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	f.gate.awaitFunc = func(gctx context.Context, target health.Target, check release.HealthCheck) error {
		<-gctx.Done()
		return gctx.Err()
	}

	rec, err := f.orch.Run(ctx, productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.StateFailed, rec.State)
	assert.Equal(t, release.KindCancelled, rec.ErrorKind)

	inFlight, err := f.store.InFlight(context.Background(), namespace)
	assert.ErrorIs(t, err, release.ErrNotFound, "in flight: %+v", inFlight)
}

func TestRun_AlreadyCancelledCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := f.orch.Run(ctx, productionSpec("v3"))
	assert.Nil(t, rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "release of "+namespace+" not started")

	history, err := f.orch.History(context.Background(), namespace)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.rec.list())
}

func TestRun_RollsBackToReleasePromotedJustBeforeBegin(t *testing.T) {
	f := newFixture(t)
	f.succeedOnce(t, "v1")

	store := &hookedStore{RecordStore: f.store}
	f.orch.store = store

	var concurrent *release.Record
	store.beforeBegin = func() {
		rec, err := f.orch.Run(context.Background(), productionSpec("v2"))
		require.NoError(t, err)
		require.Equal(t, release.OutcomeSucceeded, rec.Outcome)
		concurrent = rec
	}
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		if concurrent != nil && target.Service == "backend" && f.rec.index("unhealthy:backend") == -1 {
			return unhealthy("backend")
		}
		return nil
	}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)
	require.NotNil(t, concurrent)

	assert.Equal(t, release.OutcomeRolledBack, rec.Outcome)
	assert.Equal(t, concurrent.ID, rec.PreviousGoodID)

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, concurrent.ID, current.ID)

	images := f.client.appliedImages()
	require.GreaterOrEqual(t, len(images), 3)
	assert.Equal(t, []string{"pg:16.1", "api:v2", "web:v2"}, images[len(images)-3:])
	assert.NotContains(t, images, "api:v1")
}

func TestRun_PromoteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	good := f.succeedOnce(t, "v2")

	store := &hookedStore{RecordStore: f.store}
	store.promoteFunc = func(ctx context.Context, rec release.Record) error {
		return errors.New("database is locked")
	}
	f.orch.store = store
	f.orch.persistBackoff = wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 3}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)

	assert.Equal(t, 3, store.promoteCalls())
	assert.Equal(t, release.StateRolledBack, rec.State)
	assert.Equal(t, release.OutcomeRolledBack, rec.Outcome)
	assert.Equal(t, release.KindPersistence, rec.ErrorKind)
	assert.Contains(t, rec.Error, "database is locked")

	images := f.client.appliedImages()
	assert.Equal(t, []string{"pg:16.1", "api:v2", "web:v2"}, images[len(images)-3:])

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, good.ID, current.ID)

	stored, err := f.orch.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, release.StateRolledBack, stored.State)

	store.promoteFunc = nil
	next, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.OutcomeSucceeded, next.Outcome)
}

func TestRun_PromoteRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	store := &hookedStore{RecordStore: f.store}
	store.promoteFunc = func(ctx context.Context, rec release.Record) error {
		if store.promoteCalls() < 3 {
			return errors.New("database is locked")
		}
		return f.store.Promote(ctx, rec)
	}
	f.orch.store = store
	f.orch.persistBackoff = wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 5}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, 3, store.promoteCalls())

	current, err := f.orch.Current(context.Background(), namespace)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, current.ID)
}

func TestRun_PromoteFailureOnFirstReleaseFails(t *testing.T) {
	f := newFixture(t)
	store := &hookedStore{RecordStore: f.store}
	store.promoteFunc = func(ctx context.Context, rec release.Record) error {
		return errors.New("disk I/O error")
	}
	f.orch.store = store
	f.orch.persistBackoff = wait.Backoff{Duration: time.Millisecond, Steps: 2}

	rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.StateFailed, rec.State)
	assert.Equal(t, release.KindPersistence, rec.ErrorKind)
	assert.Contains(t, rec.RollbackError, "rollback impossible")

	_, err = f.orch.Current(context.Background(), namespace)
	assert.ErrorIs(t, err, release.ErrNotFound)
	_, err = f.store.InFlight(context.Background(), namespace)
	assert.ErrorIs(t, err, release.ErrNotFound)
}

func TestRun_InvalidSpecCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	spec := productionSpec("latest")
	delete(spec.HealthChecks, "frontend")

	rec, err := f.orch.Run(context.Background(), spec)
	assert.Nil(t, rec)
	require.ErrorIs(t, err, release.ErrInvalidSpec)
	assert.Contains(t, err.Error(), `service "frontend" has no healthChecks entry`)
	assert.Contains(t, err.Error(), "mutable")

	history, err := f.orch.History(context.Background(), namespace)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.rec.list())
}

func TestRun_RejectsReleaseInProgress(t *testing.T) {
	f := newFixture(t)

	gating := make(chan struct{})
	unblock := make(chan struct{})
	f.gate.awaitFunc = func(ctx context.Context, target health.Target, check release.HealthCheck) error {
		if target.Service == "database" {
			close(gating)
			<-unblock
		}
		return nil
	}

	done := make(chan *release.Record)
	go func() {
		rec, err := f.orch.Run(context.Background(), productionSpec("v3"))
		assert.NoError(t, err)
		done <- rec
	}()
	<-gating

	rec, err := f.orch.Run(context.Background(), productionSpec("v4"))
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, release.ErrReleaseInProgress)

	close(unblock)
	first := <-done
	assert.Equal(t, release.OutcomeSucceeded, first.Outcome)

	history, err := f.orch.History(context.Background(), namespace)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRun_OtherNamespacesProceed(t *testing.T) {
	f := newFixture(t)
	staging := productionSpec("v3")
	staging.Environment = release.Environment{Kind: release.EnvStaging}
	staging.Replicas = map[string]int32{"database": 1, "backend": 1, "frontend": 1}

	_, err := f.store.Begin(context.Background(), release.Record{ID: "stuck", Namespace: namespace, State: release.StateApplying})
	require.NoError(t, err)

	rec, err := f.orch.Run(context.Background(), staging)
	require.NoError(t, err)
	assert.Equal(t, "shop-staging", rec.Namespace)
	assert.Equal(t, release.OutcomeSucceeded, rec.Outcome)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Abandon(ctx, namespace, "")
	require.ErrorIs(t, err, release.ErrNotFound)

	_, err = f.store.Begin(ctx, release.Record{
		ID: "stuck", Namespace: namespace, State: release.StateHealthChecking, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = f.orch.Run(ctx, productionSpec("v3"))
	require.ErrorIs(t, err, release.ErrReleaseInProgress)

	abandoned, err := f.orch.Abandon(ctx, namespace, "process killed")
	require.NoError(t, err)
	assert.Equal(t, "stuck", abandoned.ID)
	assert.Equal(t, release.StateFailed, abandoned.State)
	assert.Equal(t, release.KindAbandoned, abandoned.ErrorKind)
	assert.Equal(t, "process killed", abandoned.Error)

	rec, err := f.orch.Run(ctx, productionSpec("v3"))
	require.NoError(t, err)
	assert.Equal(t, release.OutcomeSucceeded, rec.Outcome)
}

func TestPrepare(t *testing.T) {
	f := newFixture(t)
	spec := productionSpec("v3")
	spec.App = ""
	spec.Replicas = map[string]int32{"backend": 5}

	prepared, objs, err := f.orch.Prepare(spec)
	require.NoError(t, err)
	assert.Equal(t, "shop", prepared.App)
	assert.Equal(t, namespace, prepared.Namespace)
	assert.Equal(t, map[string]int32{"database": 1, "backend": 5, "frontend": 2}, prepared.Replicas)
	assert.Len(t, objs, 9)
	_, modified := spec.Replicas["database"]
	assert.False(t, modified, "input spec must not be modified")
}

func TestClassify(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want release.ErrorKind
	}{
		{"prerequisite", context.Background(), &release.PrerequisiteError{Name: "x"}, release.KindPrerequisite},
		{"apply", context.Background(), &release.ApplyError{Service: "db"}, release.KindApply},
		{"unhealthy", context.Background(), unhealthy("db"), release.KindUnhealthy},
		{"poll timeout stays unhealthy", context.Background(),
			&health.UnhealthyError{Service: "db", LastError: context.DeadlineExceeded}, release.KindUnhealthy},
		{"caller cancelled", cancelled, unhealthy("db"), release.KindCancelled},
		{"bare deadline", context.Background(), context.DeadlineExceeded, release.KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ctx, tt.err))
		})
	}
}

func healthEvents(events []string) []string {
	var out []string
	for _, e := range events {
		if len(e) > 8 && e[:8] == "healthy:" {
			out = append(out, e)
		}
	}
	return out
}
