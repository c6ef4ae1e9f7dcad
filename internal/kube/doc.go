// Package kube is relctl's view of a Kubernetes cluster.
//
// It loads client configuration from kubeconfig contexts and offers the
// operations the release orchestrator builds on:
//
//   - Apply: create or update rendered objects, skipping any object whose
//     relctl.io/content-hash annotation already matches the live object.
//     Re-applying an unchanged release therefore issues no writes.
//   - Status: the rollout state of a Deployment.
//   - Prune: delete relctl-managed objects that are no longer part of the
//     release, used after restoring a previous release.
//   - ProxyGet: an HTTP probe through the API server's service proxy, so
//     health checks work from outside the cluster network.
//
// LeaseLock provides a cluster-wide lock on coordination.k8s.io/v1 Leases,
// used to serialize prerequisite installs across processes.
//
// # Usage Example
//
//	cluster, err := kube.Connect("", "kind-dev")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := cluster.Apply(ctx, objs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d created, %d updated\n", len(result.Created), len(result.Updated))
//
// # Thread Safety
//
// Cluster holds no mutable state and may be shared between goroutines.
package kube
