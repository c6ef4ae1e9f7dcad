package health

import (
	"context"
	"sync"

	"relctl/internal/kube"
	"relctl/internal/render"
)

// mockClient implements kube.Client with function hooks.
type mockClient struct {
	mu sync.Mutex

	statusFunc   func(ref kube.WorkloadRef) (kube.WorkloadStatus, error)
	proxyGetFunc func(namespace, service string, port int32, path string) (int, error)

	proxyCalls []string
}

func (m *mockClient) Apply(ctx context.Context, objs []render.Object) (kube.ApplyResult, error) {
	return kube.ApplyResult{}, nil
}

func (m *mockClient) Status(ctx context.Context, ref kube.WorkloadRef) (kube.WorkloadStatus, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ref)
	}
	return readyStatus(1), nil
}

func (m *mockClient) Prune(ctx context.Context, namespace string, keep []render.ObjectRef) error {
	return nil
}

func (m *mockClient) ProxyGet(ctx context.Context, namespace, service string, port int32, path string) (int, error) {
	m.mu.Lock()
	m.proxyCalls = append(m.proxyCalls, path)
	m.mu.Unlock()
	if m.proxyGetFunc != nil {
		return m.proxyGetFunc(namespace, service, port, path)
	}
	return 200, nil
}

func readyStatus(n int32) kube.WorkloadStatus {
	return kube.WorkloadStatus{
		Exists:             true,
		Generation:         2,
		ObservedGeneration: 2,
		Desired:            n,
		Replicas:           n,
		Updated:            n,
		Ready:              n,
		Available:          n,
	}
}
