package kube

import (
	"context"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Important for various auth providers

	"relctl/internal/render"
	"relctl/pkg/logging"
)

const (
	subsystem    = "KubeClient"
	fieldManager = "relctl"
)

// Client is the narrow view of the cluster the release orchestrator needs.
// Rollback is a re-apply of a previous object set, so there is no separate
// rollback call.
type Client interface {
	// Apply converges the given objects. Objects whose content hash matches
	// the live object are left untouched.
	Apply(ctx context.Context, objs []render.Object) (ApplyResult, error)

	// Status reports the rollout state of a Deployment. A missing Deployment
	// is reported with Exists false and no error.
	Status(ctx context.Context, ref WorkloadRef) (WorkloadStatus, error)

	// Prune deletes every relctl-managed object in the namespace that is not
	// listed in keep.
	Prune(ctx context.Context, namespace string, keep []render.ObjectRef) error

	// ProxyGet issues an HTTP GET to a Service through the API server proxy
	// and returns the response status code.
	ProxyGet(ctx context.Context, namespace, service string, port int32, path string) (int, error)
}

// Cluster implements Client on top of a typed clientset.
type Cluster struct {
	clientset kubernetes.Interface
}

var _ Client = (*Cluster)(nil)

// NewCluster wraps an existing clientset.
func NewCluster(clientset kubernetes.Interface) *Cluster {
	return &Cluster{clientset: clientset}
}

// NewClientset creates a clientset for a kubeconfig context.
var NewClientset = func(kubeconfig, contextName string) (kubernetes.Interface, error) {
	restConfig, err := RESTConfig(kubeconfig, contextName)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// Connect loads the kubeconfig and returns a Cluster for the given context.
func Connect(kubeconfig, contextName string) (*Cluster, error) {
	clientset, err := NewClientset(kubeconfig, contextName)
	if err != nil {
		return nil, err
	}
	return NewCluster(clientset), nil
}

// Clientset exposes the underlying clientset for components that need more
// than Client offers, such as the prerequisite installer.
func (c *Cluster) Clientset() kubernetes.Interface {
	return c.clientset
}

type applyAction int

const (
	actionUnchanged applyAction = iota
	actionCreated
	actionUpdated
)

func (c *Cluster) Apply(ctx context.Context, objs []render.Object) (ApplyResult, error) {
	var result ApplyResult
	ensured := make(map[string]bool)

	for _, o := range objs {
		ns := o.Resource.GetNamespace()
		if !ensured[ns] {
			if err := c.ensureNamespace(ctx, ns); err != nil {
				return result, err
			}
			ensured[ns] = true
		}

		action, err := c.applyObject(ctx, o)
		if err != nil {
			return result, fmt.Errorf("apply %s: %w", o.Ref(), err)
		}
		switch action {
		case actionCreated:
			logging.Debug(subsystem, "Created %s", o.Ref())
			result.Created = append(result.Created, o.Ref())
		case actionUpdated:
			logging.Debug(subsystem, "Updated %s", o.Ref())
			result.Updated = append(result.Updated, o.Ref())
		default:
			result.Unchanged = append(result.Unchanged, o.Ref())
		}
	}
	return result, nil
}

func (c *Cluster) ensureNamespace(ctx context.Context, name string) error {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get namespace %s: %w", name, err)
	}

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:   name,
		Labels: map[string]string{render.LabelManagedBy: render.ManagedBy},
	}}
	_, err = c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{FieldManager: fieldManager})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	logging.Info(subsystem, "Created namespace %s", name)
	return nil
}

func (c *Cluster) applyObject(ctx context.Context, o render.Object) (applyAction, error) {
	ns := o.Resource.GetNamespace()
	switch obj := o.Resource.(type) {
	case *corev1.ConfigMap:
		return upsert[*corev1.ConfigMap](ctx, c.clientset.CoreV1().ConfigMaps(ns), obj, nil)
	case *appsv1.Deployment:
		return upsert[*appsv1.Deployment](ctx, c.clientset.AppsV1().Deployments(ns), obj, nil)
	case *corev1.Service:
		return upsert[*corev1.Service](ctx, c.clientset.CoreV1().Services(ns), obj, func(live, desired *corev1.Service) {
			// Allocated by the API server and immutable.
			desired.Spec.ClusterIP = live.Spec.ClusterIP
			desired.Spec.ClusterIPs = live.Spec.ClusterIPs
		})
	case *networkingv1.Ingress:
		return upsert[*networkingv1.Ingress](ctx, c.clientset.NetworkingV1().Ingresses(ns), obj, nil)
	}
	return actionUnchanged, fmt.Errorf("unsupported object type %T", o.Resource)
}

// typedClient is the subset of a generated typed client used by upsert.
type typedClient[T render.Resource] interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (T, error)
	Create(ctx context.Context, obj T, opts metav1.CreateOptions) (T, error)
	Update(ctx context.Context, obj T, opts metav1.UpdateOptions) (T, error)
}

func upsert[T render.Resource](ctx context.Context, api typedClient[T], desired T, carry func(live, desired T)) (applyAction, error) {
	live, err := api.Get(ctx, desired.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := api.Create(ctx, desired, metav1.CreateOptions{FieldManager: fieldManager}); err != nil {
			return actionUnchanged, err
		}
		return actionCreated, nil
	}
	if err != nil {
		return actionUnchanged, err
	}

	want := desired.GetAnnotations()[render.HashAnnotation]
	if want != "" && live.GetAnnotations()[render.HashAnnotation] == want {
		return actionUnchanged, nil
	}

	update := desired.DeepCopyObject().(T)
	update.SetResourceVersion(live.GetResourceVersion())
	if carry != nil {
		carry(live, update)
	}
	if _, err := api.Update(ctx, update, metav1.UpdateOptions{FieldManager: fieldManager}); err != nil {
		return actionUnchanged, err
	}
	return actionUpdated, nil
}

func (c *Cluster) Status(ctx context.Context, ref WorkloadRef) (WorkloadStatus, error) {
	dep, err := c.clientset.AppsV1().Deployments(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return WorkloadStatus{}, nil
	}
	if err != nil {
		return WorkloadStatus{}, fmt.Errorf("failed to get deployment %s/%s: %w", ref.Namespace, ref.Name, err)
	}
	return deploymentStatus(dep), nil
}

func deploymentStatus(dep *appsv1.Deployment) WorkloadStatus {
	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	return WorkloadStatus{
		Exists:             true,
		Generation:         dep.Generation,
		ObservedGeneration: dep.Status.ObservedGeneration,
		Desired:            desired,
		Replicas:           dep.Status.Replicas,
		Updated:            dep.Status.UpdatedReplicas,
		Ready:              dep.Status.ReadyReplicas,
		Available:          dep.Status.AvailableReplicas,
	}
}

func (c *Cluster) Prune(ctx context.Context, namespace string, keep []render.ObjectRef) error {
	kept := make(map[render.ObjectRef]bool, len(keep))
	for _, ref := range keep {
		kept[ref] = true
	}
	opts := metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(labels.Set{render.LabelManagedBy: render.ManagedBy}).String(),
	}

	var stale []render.ObjectRef
	collect := func(kind string, names []string) {
		for _, name := range names {
			ref := render.ObjectRef{Kind: kind, Namespace: namespace, Name: name}
			if !kept[ref] {
				stale = append(stale, ref)
			}
		}
	}

	// Dependents first, so traffic stops before its backends disappear.
	ingresses, err := c.clientset.NetworkingV1().Ingresses(namespace).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list ingresses: %w", err)
	}
	collect(render.KindIngress, namesOf(ingresses.Items, func(i networkingv1.Ingress) string { return i.Name }))

	services, err := c.clientset.CoreV1().Services(namespace).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list services: %w", err)
	}
	collect(render.KindService, namesOf(services.Items, func(s corev1.Service) string { return s.Name }))

	deployments, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}
	collect(render.KindDeployment, namesOf(deployments.Items, func(d appsv1.Deployment) string { return d.Name }))

	configMaps, err := c.clientset.CoreV1().ConfigMaps(namespace).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list configmaps: %w", err)
	}
	collect(render.KindConfigMap, namesOf(configMaps.Items, func(cm corev1.ConfigMap) string { return cm.Name }))

	propagation := metav1.DeletePropagationBackground
	del := metav1.DeleteOptions{PropagationPolicy: &propagation}
	for _, ref := range stale {
		var err error
		switch ref.Kind {
		case render.KindIngress:
			err = c.clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, ref.Name, del)
		case render.KindService:
			err = c.clientset.CoreV1().Services(namespace).Delete(ctx, ref.Name, del)
		case render.KindDeployment:
			err = c.clientset.AppsV1().Deployments(namespace).Delete(ctx, ref.Name, del)
		case render.KindConfigMap:
			err = c.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, ref.Name, del)
		}
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete %s: %w", ref, err)
		}
		logging.Info(subsystem, "Pruned %s", ref)
	}
	return nil
}

func namesOf[T any](items []T, name func(T) string) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, name(item))
	}
	return names
}

func (c *Cluster) ProxyGet(ctx context.Context, namespace, service string, port int32, path string) (int, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	result := c.clientset.CoreV1().RESTClient().Get().
		Namespace(namespace).
		Resource("services").
		Name(fmt.Sprintf("%s:%d", service, port)).
		SubResource("proxy").
		Suffix(path).
		Do(ctx)

	var code int
	result.StatusCode(&code)
	if code == 0 {
		if err := result.Error(); err != nil {
			return 0, fmt.Errorf("proxy GET %s/%s%s: %w", namespace, service, path, err)
		}
	}
	return code, nil
}

// NodeHealth counts the ready nodes of the cluster.
func (c *Cluster) NodeHealth(ctx context.Context) (NodeHealth, error) {
	nodeList, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return NodeHealth{}, fmt.Errorf("failed to list nodes: %w", err)
	}

	health := NodeHealth{TotalNodes: len(nodeList.Items)}
	for _, node := range nodeList.Items {
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				health.ReadyNodes++
				break
			}
		}
	}
	return health, nil
}

// ServerVersion returns the API server's git version, e.g. "v1.30.2".
func (c *Cluster) ServerVersion() (string, error) {
	info, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	return info.GitVersion, nil
}
