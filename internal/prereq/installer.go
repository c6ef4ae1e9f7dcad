// Package prereq converges cluster-wide add-ons (ingress controller,
// certificate manager, ...) before any release resources are applied.
package prereq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"relctl/internal/release"
	"relctl/pkg/logging"
)

const subsystem = "PrereqInstaller"

const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 2 * time.Second
	backoffFactor    = 2.0
)

// Presence is what a backend observed for one prerequisite.
type Presence struct {
	Installed bool
	Version   string
}

// Backend checks for and installs prerequisites.
type Backend interface {
	Check(ctx context.Context, p release.Prerequisite) (Presence, error)
	Install(ctx context.Context, p release.Prerequisite) error
}

// Locker serializes installs of the same add-on across processes.
// *kube.LeaseLock implements it.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Action says what Ensure did for a prerequisite.
type Action string

const (
	ActionAlreadyPresent Action = "present"
	ActionInstalled      Action = "installed"
)

// Installed reports the converged state of one prerequisite.
type Installed struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Action  Action `json:"action" yaml:"action"`
}

// Status is the observed state of a prerequisite, without side effects.
type Status struct {
	Prerequisite release.Prerequisite
	Presence     Presence
	Satisfied    bool
	Err          error
}

// Option configures an Installer.
type Option func(*Installer)

// WithLocker adds a cluster-wide lock around installs.
func WithLocker(l Locker) Option {
	return func(i *Installer) { i.locker = l }
}

// WithVerifyBackoff sets how often and how patiently a fresh install is
// checked for presence.
func WithVerifyBackoff(attempts int, baseDelay time.Duration) Option {
	return func(i *Installer) {
		if attempts > 0 {
			i.attempts = attempts
		}
		if baseDelay > 0 {
			i.baseDelay = baseDelay
		}
	}
}

// Installer converges a set of prerequisites. It is safe for concurrent use;
// concurrent Ensure calls install each add-on at most once.
type Installer struct {
	backend   Backend
	locker    Locker
	attempts  int
	baseDelay time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewInstaller creates an Installer on top of a backend.
func NewInstaller(backend Backend, opts ...Option) *Installer {
	i := &Installer{
		backend:   backend,
		attempts:  DefaultAttempts,
		baseDelay: DefaultBaseDelay,
		locks:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ensure makes every prerequisite present at its requested version. Presence
// checks run concurrently. Any failure is returned as a
// *release.PrerequisiteError; there is no partial success.
func (i *Installer) Ensure(ctx context.Context, set []release.Prerequisite) ([]Installed, error) {
	if err := validate(set); err != nil {
		return nil, err
	}

	results := make([]Installed, len(set))
	g, gctx := errgroup.WithContext(ctx)
	for idx, p := range set {
		g.Go(func() error {
			installed, err := i.ensureOne(gctx, p)
			if err != nil {
				var perr *release.PrerequisiteError
				if errors.As(err, &perr) {
					return err
				}
				return &release.PrerequisiteError{Name: p.Name, Cause: err}
			}
			results[idx] = installed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (i *Installer) ensureOne(ctx context.Context, p release.Prerequisite) (Installed, error) {
	presence, err := i.backend.Check(ctx, p)
	if err != nil {
		return Installed{}, fmt.Errorf("check: %w", err)
	}
	if satisfied(p, presence) {
		logging.Debug(subsystem, "%s %s already present", p.Name, presence.Version)
		return Installed{Name: p.Name, Version: presence.Version, Action: ActionAlreadyPresent}, nil
	}

	unlock, err := i.lock(ctx, p.Name)
	if err != nil {
		return Installed{}, err
	}
	defer unlock()

	// Another caller may have installed it while we waited for the lock.
	presence, err = i.backend.Check(ctx, p)
	if err != nil {
		return Installed{}, fmt.Errorf("check: %w", err)
	}
	if satisfied(p, presence) {
		logging.Debug(subsystem, "%s %s installed concurrently", p.Name, presence.Version)
		return Installed{Name: p.Name, Version: presence.Version, Action: ActionAlreadyPresent}, nil
	}

	if presence.Installed {
		logging.Info(subsystem, "Upgrading %s from %s to %s", p.Name, presence.Version, p.Version)
	} else {
		logging.Info(subsystem, "Installing %s %s into %s", p.Name, p.Version, p.Namespace)
	}
	if err := i.backend.Install(ctx, p); err != nil {
		return Installed{}, fmt.Errorf("install: %w", err)
	}

	presence, err = i.verify(ctx, p)
	if err != nil {
		return Installed{}, err
	}
	logging.Info(subsystem, "%s %s is present", p.Name, presence.Version)
	return Installed{Name: p.Name, Version: presence.Version, Action: ActionInstalled}, nil
}

// verify polls presence with exponential backoff after an install.
func (i *Installer) verify(ctx context.Context, p release.Prerequisite) (Presence, error) {
	var (
		presence Presence
		lastErr  error
	)
	backoff := wait.Backoff{Duration: i.baseDelay, Factor: backoffFactor, Steps: i.attempts}
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		got, err := i.backend.Check(ctx, p)
		if err != nil {
			lastErr = err
			return false, nil
		}
		presence = got
		return satisfied(p, got), nil
	})
	if err == nil {
		return presence, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Presence{}, ctxErr
	}
	if lastErr != nil {
		return Presence{}, fmt.Errorf("not present after %d checks: %w", i.attempts, lastErr)
	}
	if presence.Installed {
		return Presence{}, fmt.Errorf("version %s does not satisfy %s after %d checks", presence.Version, p.Version, i.attempts)
	}
	return Presence{}, fmt.Errorf("deployment %s/%s not present after %d checks", p.Namespace, p.Presence.Deployment, i.attempts)
}

// lock serializes installs of one add-on: first in-process, then, when a
// Locker is configured, across processes.
func (i *Installer) lock(ctx context.Context, name string) (func(), error) {
	i.mu.Lock()
	sem, ok := i.locks[name]
	if !ok {
		sem = make(chan struct{}, 1)
		i.locks[name] = sem
	}
	i.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if i.locker == nil {
		return func() { <-sem }, nil
	}

	release, err := i.locker.Acquire(ctx, "relctl-prereq-"+name)
	if err != nil {
		<-sem
		return nil, fmt.Errorf("lock: %w", err)
	}
	return func() {
		release()
		<-sem
	}, nil
}

// Status checks every prerequisite concurrently without installing anything.
func (i *Installer) Status(ctx context.Context, set []release.Prerequisite) []Status {
	out := make([]Status, len(set))
	var wg sync.WaitGroup
	for idx, p := range set {
		wg.Add(1)
		go func() {
			defer wg.Done()
			presence, err := i.backend.Check(ctx, p)
			out[idx] = Status{
				Prerequisite: p,
				Presence:     presence,
				Satisfied:    err == nil && satisfied(p, presence),
				Err:          err,
			}
		}()
	}
	wg.Wait()
	return out
}

func satisfied(p release.Prerequisite, presence Presence) bool {
	return presence.Installed && versionSatisfies(presence.Version, p.Version)
}

func validate(set []release.Prerequisite) error {
	seen := make(map[string]bool, len(set))
	for _, p := range set {
		var problem string
		switch {
		case p.Name == "":
			problem = "name is required"
		case seen[p.Name]:
			problem = "declared more than once"
		case p.Namespace == "":
			problem = "namespace is required"
		case p.Chart == "":
			problem = "chart is required"
		case p.Presence.Deployment == "":
			problem = "presence.deployment is required"
		}
		if problem != "" {
			return &release.PrerequisiteError{Name: p.Name, Cause: errors.New(problem)}
		}
		seen[p.Name] = true
	}
	return nil
}
