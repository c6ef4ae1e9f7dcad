package api

import (
	"context"

	"relctl/internal/release"
)

// mockReleaser implements Releaser with function hooks.
type mockReleaser struct {
	runFunc     func(ctx context.Context, spec release.Spec) (*release.Record, error)
	currentFunc func(ctx context.Context, namespace string) (*release.Record, error)
	historyFunc func(ctx context.Context, namespace string) ([]release.Record, error)
	getFunc     func(ctx context.Context, id string) (*release.Record, error)
	abandonFunc func(ctx context.Context, namespace, reason string) (*release.Record, error)
}

func (m *mockReleaser) Run(ctx context.Context, spec release.Spec) (*release.Record, error) {
	return m.runFunc(ctx, spec)
}

func (m *mockReleaser) Current(ctx context.Context, namespace string) (*release.Record, error) {
	return m.currentFunc(ctx, namespace)
}

func (m *mockReleaser) History(ctx context.Context, namespace string) ([]release.Record, error) {
	return m.historyFunc(ctx, namespace)
}

func (m *mockReleaser) Get(ctx context.Context, id string) (*release.Record, error) {
	return m.getFunc(ctx, id)
}

func (m *mockReleaser) Abandon(ctx context.Context, namespace, reason string) (*release.Record, error) {
	return m.abandonFunc(ctx, namespace, reason)
}
