// Package orchestrator drives a release from spec to a terminal record.
//
// A release moves through a fixed state machine:
//
//	Pending -> PrerequisitesReady -> Applying -> HealthChecking -> Succeeded
//
// Services are applied one at a time in the spec's dependency order, and each
// service must pass its health gate before the next one is applied. When an
// apply fails, a gate is exhausted, or the caller cancels, the orchestrator
// evaluates a rollback:
//
//   - With a previous good release, it re-applies that release's full
//     object set service by service, gates every service again, and prunes
//     objects that are not part of the restored set. The attempt ends
//     RolledBack and the namespace's current release is unchanged.
//   - Without one, or when the rollback itself fails, the attempt ends
//     Failed and the namespace is left as it is for an operator.
//
// Prerequisite failures end in Failed directly since nothing in the release
// namespace was touched.
//
// # Records
//
// Every attempt is persisted through a [release.RecordStore]. The store
// rejects a second in-flight release for the same namespace, and the
// namespace's current pointer moves only in the same write that marks a
// record Succeeded. Rollback and the final record write run on a context
// detached from the caller's, bounded by Config.RollbackTimeout, so a
// cancelled release still resolves to a terminal state.
//
// # Usage Example
//
//	orch := orchestrator.New(cfg, orchestrator.Dependencies{
//	    Client:    cluster,
//	    Installer: installer,
//	    Gate:      health.NewGate(&health.KubeProber{Client: cluster}),
//	    Store:     store,
//	})
//	rec, err := orch.Run(ctx, spec)
//	if err != nil {
//	    // invalid spec, release in progress, or the record could not be created
//	}
//	fmt.Println(rec.Outcome)
package orchestrator
