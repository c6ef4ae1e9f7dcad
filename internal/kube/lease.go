package kube

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"relctl/internal/render"
	"relctl/pkg/logging"
)

const (
	DefaultLeaseDuration = 60 * time.Second
	defaultRetryInterval = 2 * time.Second
)

// LeaseLock is a cluster-wide mutual exclusion lock backed by
// coordination.k8s.io/v1 Leases. It serializes work across processes, for
// example two CI jobs installing the same add-on.
type LeaseLock struct {
	clientset kubernetes.Interface
	namespace string
	identity  string

	// LeaseDuration is how long a holder may go without renewing before the
	// lease can be taken over.
	LeaseDuration time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration

	now func() time.Time
}

// NewLeaseLock returns a lock that creates its leases in namespace. The
// identity defaults to hostname plus a random suffix.
func NewLeaseLock(clientset kubernetes.Interface, namespace, identity string) *LeaseLock {
	if identity == "" {
		host, _ := os.Hostname()
		identity = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return &LeaseLock{
		clientset:     clientset,
		namespace:     namespace,
		identity:      identity,
		LeaseDuration: DefaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
		now:           time.Now,
	}
}

// Identity is the holder identity written into acquired leases.
func (l *LeaseLock) Identity() string {
	return l.identity
}

// Acquire blocks until the named lease is held by this lock or ctx is done.
// The lease is renewed in the background until the returned release func is
// called.
func (l *LeaseLock) Acquire(ctx context.Context, name string) (func(), error) {
	err := wait.PollUntilContextCancel(ctx, l.RetryInterval, true, func(ctx context.Context) (bool, error) {
		return l.tryAcquire(ctx, name)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s/%s: %w", l.namespace, name, err)
	}
	logging.Debug(subsystem, "Acquired lease %s/%s as %s", l.namespace, name, l.identity)

	renewCtx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(renewCtx, name)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			wg.Wait()
			l.release(name)
		})
	}, nil
}

func (l *LeaseLock) tryAcquire(ctx context.Context, name string) (bool, error) {
	leases := l.clientset.CoordinationV1().Leases(l.namespace)
	now := metav1.NewMicroTime(l.now())
	seconds := int32(l.LeaseDuration / time.Second)

	lease, err := leases.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: l.namespace,
				Labels:    map[string]string{render.LabelManagedBy: render.ManagedBy},
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &l.identity,
				LeaseDurationSeconds: &seconds,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		_, err := leases.Create(ctx, lease, metav1.CreateOptions{FieldManager: fieldManager})
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	if l.heldByOther(lease) {
		return false, nil
	}

	lease.Spec.HolderIdentity = &l.identity
	lease.Spec.LeaseDurationSeconds = &seconds
	lease.Spec.AcquireTime = &now
	lease.Spec.RenewTime = &now
	_, err = leases.Update(ctx, lease, metav1.UpdateOptions{FieldManager: fieldManager})
	if apierrors.IsConflict(err) {
		return false, nil
	}
	return err == nil, err
}

func holderOf(lease *coordinationv1.Lease) string {
	if lease.Spec.HolderIdentity == nil {
		return ""
	}
	return *lease.Spec.HolderIdentity
}

// heldByOther reports whether a different identity holds an unexpired lease.
func (l *LeaseLock) heldByOther(lease *coordinationv1.Lease) bool {
	if holder := holderOf(lease); holder == "" || holder == l.identity {
		return false
	}
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return false
	}
	expires := lease.Spec.RenewTime.Add(time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second)
	return l.now().Before(expires)
}

func (l *LeaseLock) renew(ctx context.Context, name string) {
	interval := l.LeaseDuration / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leases := l.clientset.CoordinationV1().Leases(l.namespace)
			lease, err := leases.Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				logging.Warn(subsystem, "Failed to renew lease %s/%s: %v", l.namespace, name, err)
				continue
			}
			if holder := holderOf(lease); holder != l.identity {
				logging.Warn(subsystem, "Lost lease %s/%s to %q", l.namespace, name, holder)
				return
			}
			now := metav1.NewMicroTime(l.now())
			lease.Spec.RenewTime = &now
			if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{FieldManager: fieldManager}); err != nil {
				logging.Warn(subsystem, "Failed to renew lease %s/%s: %v", l.namespace, name, err)
			}
		}
	}
}

// release clears the holder so the next caller does not wait for expiry.
func (l *LeaseLock) release(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	leases := l.clientset.CoordinationV1().Leases(l.namespace)
	lease, err := leases.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			logging.Warn(subsystem, "Failed to release lease %s/%s: %v", l.namespace, name, err)
		}
		return
	}
	if holderOf(lease) != l.identity {
		return
	}
	lease.Spec.HolderIdentity = nil
	lease.Spec.AcquireTime = nil
	lease.Spec.RenewTime = nil
	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{FieldManager: fieldManager}); err != nil {
		logging.Warn(subsystem, "Failed to release lease %s/%s: %v", l.namespace, name, err)
		return
	}
	logging.Debug(subsystem, "Released lease %s/%s", l.namespace, name)
}
