package prereq

import (
	"context"
	"sync"
	"time"

	"relctl/internal/release"
)

// fakeBackend keeps installed versions in memory. Install makes the add-on
// visible after installDelay.
type fakeBackend struct {
	mu           sync.Mutex
	versions     map[string]string
	installs     map[string]int
	installDelay time.Duration

	checkFunc   func(p release.Prerequisite) (Presence, error, bool)
	installFunc func(p release.Prerequisite) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{versions: make(map[string]string), installs: make(map[string]int)}
}

func (f *fakeBackend) Check(_ context.Context, p release.Prerequisite) (Presence, error) {
	if f.checkFunc != nil {
		if presence, err, handled := f.checkFunc(p); handled {
			return presence, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[p.Name]
	return Presence{Installed: ok, Version: v}, nil
}

func (f *fakeBackend) Install(ctx context.Context, p release.Prerequisite) error {
	f.mu.Lock()
	f.installs[p.Name]++
	f.mu.Unlock()

	if f.installFunc != nil {
		if err := f.installFunc(p); err != nil {
			return err
		}
	}
	select {
	case <-time.After(f.installDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	f.versions[p.Name] = p.Version
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) installCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs[name]
}

// fakeLocker records acquisitions and enforces exclusion per name.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	err      error
}

func (l *fakeLocker) Acquire(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[name] {
		panic("lease acquired twice: " + name)
	}
	l.held[name] = true
	l.acquired = append(l.acquired, name)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held[name] = false
	}, nil
}

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	return "Release has been upgraded. Happy Helming!", "", r.err
}
