package orchestrator

import (
	"context"
	"fmt"

	"relctl/internal/release"
	"relctl/pkg/logging"
)

// Current returns the namespace's last succeeded release.
func (o *Orchestrator) Current(ctx context.Context, namespace string) (*release.Record, error) {
	rec, err := o.store.Current(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// History returns every release of the namespace, oldest first.
func (o *Orchestrator) History(ctx context.Context, namespace string) ([]release.Record, error) {
	return o.store.List(ctx, namespace)
}

// Get returns a release by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*release.Record, error) {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Abandon marks the namespace's in-flight release Failed so a new release
// can start. It is meant for records left behind by a process that died
// mid-release; the cluster is not touched.
func (o *Orchestrator) Abandon(ctx context.Context, namespace, reason string) (*release.Record, error) {
	rec, err := o.store.InFlight(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("no release in flight for %s: %w", namespace, err)
	}

	if reason == "" {
		reason = "abandoned by operator"
	}
	logging.Warn(subsystem, "Abandoning release %s in %s (state %s): %s", rec.ID, namespace, rec.State, reason)
	rec.State = release.StateFailed
	rec.Outcome = release.OutcomeFailed
	rec.FinishedAt = o.now()
	rec.ErrorKind = release.KindAbandoned
	rec.Error = reason
	if err := o.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to abandon release %s: %w", rec.ID, err)
	}
	o.notify(rec)
	return &rec, nil
}
