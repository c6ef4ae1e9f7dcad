package orchestrator

import (
	"context"
	"fmt"
	"sync"

	appsv1 "k8s.io/api/apps/v1"

	"relctl/internal/health"
	"relctl/internal/kube"
	"relctl/internal/prereq"
	"relctl/internal/release"
	"relctl/internal/render"
	"relctl/internal/store/memory"
)

// recorder is the shared, ordered log of cluster and gate calls.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) index(event string) int {
	for i, e := range r.list() {
		if e == event {
			return i
		}
	}
	return -1
}

// mockClient implements kube.Client, logging every call.
type mockClient struct {
	rec *recorder

	applyFunc func(ctx context.Context, service string, objs []render.Object) error
	pruneFunc func(namespace string, keep []render.ObjectRef) error

	mu     sync.Mutex
	images []string
	pruned [][]render.ObjectRef
}

func (m *mockClient) Apply(ctx context.Context, objs []render.Object) (kube.ApplyResult, error) {
	var svc string
	for _, o := range objs {
		svc = o.Service
		if dep, ok := o.Resource.(*appsv1.Deployment); ok {
			m.mu.Lock()
			m.images = append(m.images, dep.Spec.Template.Spec.Containers[0].Image)
			m.mu.Unlock()
		}
	}
	m.rec.add("apply:%s", svc)
	if m.applyFunc != nil {
		if err := m.applyFunc(ctx, svc, objs); err != nil {
			return kube.ApplyResult{}, err
		}
	}
	return kube.ApplyResult{Created: render.Refs(objs)}, nil
}

func (m *mockClient) Status(ctx context.Context, ref kube.WorkloadRef) (kube.WorkloadStatus, error) {
	return kube.WorkloadStatus{Exists: true}, nil
}

func (m *mockClient) Prune(ctx context.Context, namespace string, keep []render.ObjectRef) error {
	m.rec.add("prune:%s", namespace)
	m.mu.Lock()
	m.pruned = append(m.pruned, keep)
	m.mu.Unlock()
	if m.pruneFunc != nil {
		return m.pruneFunc(namespace, keep)
	}
	return nil
}

func (m *mockClient) ProxyGet(ctx context.Context, namespace, service string, port int32, path string) (int, error) {
	return 200, nil
}

func (m *mockClient) appliedImages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.images...)
}

// mockGate implements Gate. awaitFunc decides per call; nil means healthy.
type mockGate struct {
	rec       *recorder
	awaitFunc func(ctx context.Context, target health.Target, check release.HealthCheck) error
}

func (g *mockGate) Await(ctx context.Context, target health.Target, check release.HealthCheck) error {
	if g.awaitFunc != nil {
		if err := g.awaitFunc(ctx, target, check); err != nil {
			g.rec.add("unhealthy:%s", target.Service)
			return err
		}
	}
	g.rec.add("healthy:%s", target.Service)
	return nil
}

// mockInstaller implements Installer.
type mockInstaller struct {
	rec        *recorder
	ensureFunc func(ctx context.Context, set []release.Prerequisite) ([]prereq.Installed, error)
}

func (m *mockInstaller) Ensure(ctx context.Context, set []release.Prerequisite) ([]prereq.Installed, error) {
	m.rec.add("prerequisites")
	if m.ensureFunc != nil {
		return m.ensureFunc(ctx, set)
	}
	out := make([]prereq.Installed, 0, len(set))
	for _, p := range set {
		out = append(out, prereq.Installed{Name: p.Name, Version: p.Version, Action: prereq.ActionAlreadyPresent})
	}
	return out, nil
}

func unhealthy(service string) error {
	return &health.UnhealthyError{Service: service, Attempts: 5, LastError: fmt.Errorf("GET /api/health returned 503, expected 200")}
}

// hookedStore wraps a memory store. beforeBegin runs once, ahead of the
// first Begin; promoteFunc replaces Promote while set.
type hookedStore struct {
	*memory.RecordStore

	beforeBegin func()
	promoteFunc func(ctx context.Context, rec release.Record) error

	mu       sync.Mutex
	promotes int
}

func (s *hookedStore) Begin(ctx context.Context, rec release.Record) (release.Record, error) {
	if hook := s.beforeBegin; hook != nil {
		s.beforeBegin = nil
		hook()
	}
	return s.RecordStore.Begin(ctx, rec)
}

func (s *hookedStore) Promote(ctx context.Context, rec release.Record) error {
	s.mu.Lock()
	s.promotes++
	s.mu.Unlock()
	if s.promoteFunc != nil {
		return s.promoteFunc(ctx, rec)
	}
	return s.RecordStore.Promote(ctx, rec)
}

func (s *hookedStore) promoteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promotes
}
