package kube

import "relctl/internal/render"

// ApplyResult lists what an Apply call did to each object.
type ApplyResult struct {
	Created   []render.ObjectRef
	Updated   []render.ObjectRef
	Unchanged []render.ObjectRef
}

// Changed reports the number of create and update calls issued.
func (r ApplyResult) Changed() int {
	return len(r.Created) + len(r.Updated)
}

// Merge appends the actions of other to r.
func (r *ApplyResult) Merge(other ApplyResult) {
	r.Created = append(r.Created, other.Created...)
	r.Updated = append(r.Updated, other.Updated...)
	r.Unchanged = append(r.Unchanged, other.Unchanged...)
}

// WorkloadRef identifies the Deployment backing a service.
type WorkloadRef struct {
	Namespace string
	Name      string
}

// WorkloadStatus is the rollout state of a Deployment.
type WorkloadStatus struct {
	Exists             bool
	Generation         int64
	ObservedGeneration int64
	Desired            int32
	Replicas           int32
	Updated            int32
	Ready              int32
	Available          int32
}

// Converged reports whether the latest generation is fully rolled out: every
// desired replica is updated, ready and available, and no old replicas remain.
func (s WorkloadStatus) Converged() bool {
	return s.Exists &&
		s.ObservedGeneration >= s.Generation &&
		s.Replicas == s.Desired &&
		s.Updated == s.Desired &&
		s.Ready == s.Desired &&
		s.Available == s.Desired
}

// NodeHealth represents the health status of nodes in a cluster.
type NodeHealth struct {
	ReadyNodes int
	TotalNodes int
}
