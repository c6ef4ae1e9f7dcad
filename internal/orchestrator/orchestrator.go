package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"

	"relctl/internal/health"
	"relctl/internal/kube"
	"relctl/internal/prereq"
	"relctl/internal/release"
	"relctl/internal/render"
	"relctl/pkg/logging"
)

const subsystem = "Orchestrator"

// DefaultRollbackTimeout bounds rollback and the final record write once the
// caller's context is gone.
const DefaultRollbackTimeout = 10 * time.Minute

// defaultPersistBackoff paces retries of the final record write.
var defaultPersistBackoff = wait.Backoff{Duration: 200 * time.Millisecond, Factor: 2, Steps: 5}

// Installer converges cluster-wide prerequisites. *prereq.Installer
// implements it.
type Installer interface {
	Ensure(ctx context.Context, set []release.Prerequisite) ([]prereq.Installed, error)
}

// Gate decides whether a service is healthy. *health.Gate implements it.
type Gate interface {
	Await(ctx context.Context, target health.Target, check release.HealthCheck) error
}

// Config holds the settings of an Orchestrator.
type Config struct {
	// App names the application when a spec does not.
	App string
	// Profiles holds per-environment defaults.
	Profiles map[release.EnvironmentKind]release.Profile
	// Prerequisites are ensured before every release.
	Prerequisites []release.Prerequisite
	// RollbackTimeout bounds rollback and the final record write.
	RollbackTimeout time.Duration

	// OnTransition, when set, is called after every persisted state change.
	OnTransition func(rec release.Record)
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Client    kube.Client
	Installer Installer
	Gate      Gate
	Store     release.RecordStore
}

// Orchestrator runs releases. It holds no per-release state and may be
// shared between goroutines; the record store serializes releases per
// namespace.
type Orchestrator struct {
	cfg       Config
	client    kube.Client
	installer Installer
	gate      Gate
	store     release.RecordStore

	now            func() time.Time
	newID          func() string
	persistBackoff wait.Backoff
}

// New creates an Orchestrator.
func New(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = DefaultRollbackTimeout
	}
	return &Orchestrator{
		cfg:       cfg,
		client:    deps.Client,
		installer: deps.Installer,
		gate:      deps.Gate,
		store:     deps.Store,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,

		persistBackoff: defaultPersistBackoff,
	}
}

// Prepare applies configured defaults to a spec and renders it, without
// touching the cluster or the store.
func (o *Orchestrator) Prepare(spec release.Spec) (release.Spec, []render.Object, error) {
	spec = spec.WithDefaults(o.cfg.App, o.cfg.Profiles[spec.Environment.Kind])
	objs, err := render.Render(spec)
	if err != nil {
		return release.Spec{}, nil, err
	}
	return spec, objs, nil
}

// Run drives one release to a terminal record. It returns an error, and
// creates no record, when the spec is invalid, another release is in flight
// for the namespace, ctx is already done, or the record cannot be created.
// Every other outcome, including cancellation of ctx once the record exists,
// is reported through the returned record.
func (o *Orchestrator) Run(ctx context.Context, spec release.Spec) (*release.Record, error) {
	spec, objs, err := o.Prepare(spec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("release of %s not started: %w", spec.Namespace, err)
	}

	rec, err := o.store.Begin(ctx, release.Record{
		ID:          o.newID(),
		Namespace:   spec.Namespace,
		Environment: spec.Environment,
		Spec:        spec,
		State:       release.StatePending,
		StartedAt:   o.now(),
	})
	if err != nil {
		return nil, err
	}
	logging.Info(subsystem, "Release %s started for %s (%s)", rec.ID, rec.Namespace, rec.Environment)
	o.notify(rec)

	r := &run{o: o, ctx: ctx, rec: rec, objs: objs}
	r.execute()
	return &r.rec, nil
}

func (o *Orchestrator) notify(rec release.Record) {
	if o.cfg.OnTransition != nil {
		o.cfg.OnTransition(rec)
	}
}

// run is the state of one release attempt.
type run struct {
	o    *Orchestrator
	ctx  context.Context
	rec  release.Record
	objs []render.Object
}

func (r *run) execute() {
	if _, err := r.o.installer.Ensure(r.ctx, r.o.cfg.Prerequisites); err != nil {
		r.fail(classify(r.ctx, err), err)
		return
	}
	r.transition(release.StatePrerequisitesReady)

	spec := r.rec.Spec
	for _, svc := range spec.DependencyOrder {
		r.transition(release.StateApplying)
		if err := r.applyService(r.ctx, r.objs, svc); err != nil {
			r.rollback(classify(r.ctx, err), err)
			return
		}

		r.transition(release.StateHealthChecking)
		if err := r.o.gate.Await(r.ctx, target(spec, svc), spec.HealthChecks[svc]); err != nil {
			r.rollback(classify(r.ctx, err), err)
			return
		}
	}

	r.succeed()
}

func (r *run) applyService(ctx context.Context, objs []render.Object, svc string) error {
	result, err := r.o.client.Apply(ctx, render.ForService(objs, svc))
	if err != nil {
		return &release.ApplyError{Service: svc, Cause: err}
	}
	logging.Info(subsystem, "Applied %s: %d created, %d updated, %d unchanged",
		svc, len(result.Created), len(result.Updated), len(result.Unchanged))
	return nil
}

// detached returns a context that survives cancellation of the caller's
// context, bounded by the rollback timeout.
func (r *run) detached() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.ctx), r.o.cfg.RollbackTimeout)
}

// transition persists a non-terminal state change. Persistence errors are
// logged; the in-memory record stays authoritative for this attempt.
func (r *run) transition(to release.State) {
	if r.rec.State == to {
		return
	}
	if !release.CanTransition(r.rec.State, to) {
		logging.Error(subsystem, fmt.Errorf("illegal transition %s -> %s", r.rec.State, to), "Release %s", r.rec.ID)
		return
	}
	logging.Debug(subsystem, "Release %s: %s -> %s", r.rec.ID, r.rec.State, to)
	r.rec.State = to

	ctx, cancel := r.detached()
	defer cancel()
	if err := r.o.store.Update(ctx, r.rec); err != nil {
		logging.Error(subsystem, err, "Failed to persist state %s of release %s", to, r.rec.ID)
	}
	r.o.notify(r.rec)
}

// succeed promotes the record. When the store cannot commit the promotion
// the cluster is restored to the current release instead, so the current
// pointer and the running release never disagree.
func (r *run) succeed() {
	done := r.rec
	done.State = release.StateSucceeded
	done.Outcome = release.OutcomeSucceeded
	done.FinishedAt = r.o.now()

	ctx, cancel := r.detached()
	defer cancel()
	if err := r.persist(ctx, func(ctx context.Context) error {
		return r.o.store.Promote(ctx, done)
	}); err != nil {
		logging.Error(subsystem, err, "Failed to promote release %s", r.rec.ID)
		r.rollback(release.KindPersistence, fmt.Errorf("failed to promote release: %w", err))
		return
	}
	r.rec = done
	logging.Info(subsystem, "Release %s succeeded; %s now runs it", r.rec.ID, r.rec.Namespace)
	r.o.notify(r.rec)
}

// persist retries a store write with exponential backoff. Errors that no
// retry can fix end the loop at once.
func (r *run) persist(ctx context.Context, write func(ctx context.Context) error) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, r.o.persistBackoff, func(ctx context.Context) (bool, error) {
		lastErr = write(ctx)
		switch {
		case lastErr == nil:
			return true, nil
		case errors.Is(lastErr, release.ErrNotFound),
			errors.Is(lastErr, release.ErrInvalidRecord),
			errors.Is(lastErr, release.ErrRecordFinalized):
			return false, lastErr
		}
		logging.Warn(subsystem, "Store write for release %s failed, retrying: %v", r.rec.ID, lastErr)
		return false, nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// fail ends the attempt in Failed without a rollback.
func (r *run) fail(kind release.ErrorKind, cause error) {
	r.finish(release.StateFailed, kind, cause)
}

func (r *run) finish(state release.State, kind release.ErrorKind, cause error) {
	r.rec.State = state
	r.rec.Outcome = release.OutcomeFor(state)
	r.rec.FinishedAt = r.o.now()
	r.rec.ErrorKind = kind
	if cause != nil {
		r.rec.Error = cause.Error()
	}

	ctx, cancel := r.detached()
	defer cancel()
	final := r.rec
	if err := r.persist(ctx, func(ctx context.Context) error {
		return r.o.store.Update(ctx, final)
	}); err != nil {
		logging.Error(subsystem, err, "Failed to persist outcome of release %s", r.rec.ID)
	}
	if state == release.StateFailed {
		logging.Error(subsystem, cause, "Release %s failed (%s)", r.rec.ID, kind)
	} else {
		logging.Warn(subsystem, "Release %s rolled back (%s): %v", r.rec.ID, kind, cause)
	}
	r.o.notify(r.rec)
}

func target(spec release.Spec, svc string) health.Target {
	return health.Target{
		Service:   svc,
		Namespace: spec.Namespace,
		Workload:  render.ObjectName(spec.App, svc),
		Port:      spec.Port(svc),
	}
}

// classify maps a failure to the kind recorded on the release.
func classify(ctx context.Context, err error) release.ErrorKind {
	if ctx.Err() != nil {
		return release.KindCancelled
	}
	var (
		perr *release.PrerequisiteError
		aerr *release.ApplyError
		uerr *health.UnhealthyError
	)
	switch {
	case errors.As(err, &perr):
		return release.KindPrerequisite
	case errors.As(err, &aerr):
		return release.KindApply
	case errors.As(err, &uerr):
		return release.KindUnhealthy
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return release.KindCancelled
	}
	return release.KindApply
}
