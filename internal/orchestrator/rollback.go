package orchestrator

import (
	"context"
	"fmt"

	"relctl/internal/release"
	"relctl/internal/render"
	"relctl/pkg/logging"
)

// rollback restores the previous good release after a failed apply or
// health gate. The caller's context may already be cancelled, so everything
// here runs detached.
func (r *run) rollback(kind release.ErrorKind, cause error) {
	if r.rec.PreviousGoodID == "" {
		r.rec.RollbackError = fmt.Sprintf("%v: no previous good release in %s", release.ErrRollbackImpossible, r.rec.Namespace)
		r.fail(kind, cause)
		return
	}

	logging.Warn(subsystem, "Release %s failed (%s), rolling back %s to %s: %v",
		r.rec.ID, kind, r.rec.Namespace, r.rec.PreviousGoodID, cause)
	r.transition(release.StateRollingBack)

	ctx, cancel := r.detached()
	defer cancel()
	if err := r.restore(ctx); err != nil {
		r.rec.RollbackError = fmt.Errorf("%w: %w", release.ErrRollbackImpossible, err).Error()
		r.fail(release.KindRollbackImpossible, cause)
		return
	}
	r.finish(release.StateRolledBack, kind, cause)
}

// restore re-applies the previous good release service by service with
// health gating, then prunes objects the failed attempt added.
func (r *run) restore(ctx context.Context) error {
	previous, err := r.o.store.Get(ctx, r.rec.PreviousGoodID)
	if err != nil {
		return fmt.Errorf("failed to load previous release: %w", err)
	}
	objs, err := render.Render(previous.Spec)
	if err != nil {
		return fmt.Errorf("failed to render previous release: %w", err)
	}

	spec := previous.Spec
	for _, svc := range spec.DependencyOrder {
		if err := r.applyService(ctx, objs, svc); err != nil {
			return err
		}
		if err := r.o.gate.Await(ctx, target(spec, svc), spec.HealthChecks[svc]); err != nil {
			return err
		}
	}

	if err := r.o.client.Prune(ctx, spec.Namespace, render.Refs(objs)); err != nil {
		return fmt.Errorf("failed to prune: %w", err)
	}
	logging.Info(subsystem, "Restored %s to release %s", spec.Namespace, previous.ID)
	return nil
}
