// Package render turns a release spec into the Kubernetes objects that make
// up the release. Rendering is pure: the same spec always yields the same
// objects, byte for byte.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"

	"relctl/internal/release"
)

const (
	// HashAnnotation carries the sha256 of an object's rendered content. The
	// cluster client compares it to skip writes for unchanged objects.
	HashAnnotation = "relctl.io/content-hash"

	// ConfigHashAnnotation on the pod template rolls pods when the service's
	// ConfigMap changes.
	ConfigHashAnnotation = "relctl.io/config-hash"

	// ManagedBy is the value of app.kubernetes.io/managed-by on every object.
	ManagedBy = "relctl"

	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelComponent = "app.kubernetes.io/component"
	LabelPartOf    = "app.kubernetes.io/part-of"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelVersion   = "app.kubernetes.io/version"

	certIssuerAnnotation = "cert-manager.io/cluster-issuer"
)

// Kinds rendered for a release.
const (
	KindConfigMap  = "ConfigMap"
	KindDeployment = "Deployment"
	KindService    = "Service"
	KindIngress    = "Ingress"
)

// Resource is a typed Kubernetes object.
type Resource interface {
	metav1.Object
	runtime.Object
}

// ObjectRef identifies a rendered object in the cluster.
type ObjectRef struct {
	Kind      string
	Namespace string
	Name      string
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s %s/%s", r.Kind, r.Namespace, r.Name)
}

// Object is one rendered resource and the service it belongs to.
type Object struct {
	Service  string
	Kind     string
	Resource Resource
}

// Ref returns the object's identity.
func (o Object) Ref() ObjectRef {
	return ObjectRef{Kind: o.Kind, Namespace: o.Resource.GetNamespace(), Name: o.Resource.GetName()}
}

// Hash returns the content hash stamped on the object.
func (o Object) Hash() string {
	return o.Resource.GetAnnotations()[HashAnnotation]
}

// Render validates the spec and returns its objects, grouped by service in
// dependency order. Within a service the order is ConfigMap, Deployment,
// Service, then Ingress for the exposed service.
func Render(spec release.Spec) ([]Object, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	exposed, _ := spec.ExposedService()
	var objs []Object
	for _, svc := range spec.DependencyOrder {
		cm := configMap(spec, svc)
		configHash, err := stamp(cm)
		if err != nil {
			return nil, err
		}
		dep, err := deployment(spec, svc, configHash)
		if err != nil {
			return nil, err
		}
		svcObj := service(spec, svc)

		objs = append(objs,
			Object{Service: svc, Kind: KindConfigMap, Resource: cm},
			Object{Service: svc, Kind: KindDeployment, Resource: dep},
			Object{Service: svc, Kind: KindService, Resource: svcObj},
		)
		if svc == exposed && spec.Ingress != nil {
			objs = append(objs, Object{Service: svc, Kind: KindIngress, Resource: ingress(spec, svc)})
		}
	}

	for _, o := range objs {
		if o.Hash() != "" {
			continue
		}
		if _, err := stamp(o.Resource); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// ForService returns the objects owned by one service, preserving order.
func ForService(objs []Object, service string) []Object {
	var out []Object
	for _, o := range objs {
		if o.Service == service {
			out = append(out, o)
		}
	}
	return out
}

// Refs returns the identity of each object.
func Refs(objs []Object) []ObjectRef {
	refs := make([]ObjectRef, 0, len(objs))
	for _, o := range objs {
		refs = append(refs, o.Ref())
	}
	return refs
}

// ObjectName is the name shared by a service's Deployment and Service.
func ObjectName(app, service string) string {
	return app + "-" + service
}

func configMapName(app, service string) string {
	return ObjectName(app, service) + "-config"
}

// stamp computes the sha256 of the object's canonical JSON and records it in
// the hash annotation. The annotation itself is excluded from the digest.
func stamp(obj Resource) (string, error) {
	annotations := obj.GetAnnotations()
	delete(annotations, HashAnnotation)
	obj.SetAnnotations(annotations)

	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", obj.GetName(), err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if annotations == nil {
		annotations = make(map[string]string, 1)
	}
	annotations[HashAnnotation] = hash
	obj.SetAnnotations(annotations)
	return hash, nil
}

func labels(spec release.Spec, svc string) map[string]string {
	l := selector(spec, svc)
	l[LabelComponent] = svc
	l[LabelPartOf] = spec.App
	l[LabelManagedBy] = ManagedBy
	l[LabelVersion] = versionLabel(spec.ImageRefs[svc].Tag)
	return l
}

func selector(spec release.Spec, svc string) map[string]string {
	return map[string]string{
		LabelName:     ObjectName(spec.App, svc),
		LabelInstance: spec.Namespace,
	}
}

var invalidLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// versionLabel makes a tag or digest usable as a label value.
func versionLabel(tag string) string {
	v := invalidLabelChars.ReplaceAllString(tag, "-")
	if len(v) > 63 {
		v = v[:63]
	}
	return strings.TrimRight(v, "-_.")
}

func objectMeta(spec release.Spec, svc, name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: spec.Namespace,
		Labels:    labels(spec, svc),
	}
}

func configMap(spec release.Spec, svc string) *corev1.ConfigMap {
	data := make(map[string]string)
	for k, v := range spec.Services[svc].Env {
		data[k] = v
	}
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: KindConfigMap},
		ObjectMeta: objectMeta(spec, svc, configMapName(spec.App, svc)),
		Data:       data,
	}
}

func deployment(spec release.Spec, svc, configHash string) (*appsv1.Deployment, error) {
	name := ObjectName(spec.App, svc)
	port := spec.Port(svc)
	replicas := spec.Replicas[svc]

	resources, err := resourceRequirements(spec.Resources[svc])
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	strategy := appsv1.DeploymentStrategy{Type: appsv1.RollingUpdateDeploymentStrategyType}
	if spec.Services[svc].Stateful {
		strategy = appsv1.DeploymentStrategy{Type: appsv1.RecreateDeploymentStrategyType}
	}

	container := corev1.Container{
		Name:  svc,
		Image: spec.ImageRefs[svc].String(),
		Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: port, Protocol: corev1.ProtocolTCP}},
		EnvFrom: []corev1.EnvFromSource{{
			ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: configMapName(spec.App, svc)},
			},
		}},
		Resources:      resources,
		ReadinessProbe: readinessProbe(spec.HealthChecks[svc], port),
	}

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: KindDeployment},
		ObjectMeta: objectMeta(spec, svc, name),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector(spec, svc)},
			Strategy: strategy,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      labels(spec, svc),
					Annotations: map[string]string{ConfigHashAnnotation: configHash},
				},
				Spec: corev1.PodSpec{Containers: []corev1.Container{container}},
			},
		},
	}, nil
}

func readinessProbe(hc release.HealthCheck, port int32) *corev1.Probe {
	handler := corev1.ProbeHandler{TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(port)}}
	if hc.Path != "" {
		handler = corev1.ProbeHandler{HTTPGet: &corev1.HTTPGetAction{Path: hc.Path, Port: intstr.FromInt32(port)}}
	}
	return &corev1.Probe{
		ProbeHandler:   handler,
		TimeoutSeconds: int32(hc.TimeoutSeconds),
		PeriodSeconds:  int32(max(hc.IntervalSeconds, 1)),
	}
}

func resourceRequirements(r release.Resources) (corev1.ResourceRequirements, error) {
	var out corev1.ResourceRequirements
	var err error
	if out.Requests, err = resourceList(r.Requests); err != nil {
		return out, fmt.Errorf("requests: %w", err)
	}
	if out.Limits, err = resourceList(r.Limits); err != nil {
		return out, fmt.Errorf("limits: %w", err)
	}
	return out, nil
}

func resourceList(m map[string]string) (corev1.ResourceList, error) {
	if len(m) == 0 {
		return nil, nil
	}
	list := make(corev1.ResourceList, len(m))
	for name, value := range m {
		q, err := resource.ParseQuantity(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		list[corev1.ResourceName(name)] = q
	}
	return list, nil
}

func service(spec release.Spec, svc string) *corev1.Service {
	port := spec.Port(svc)
	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: KindService},
		ObjectMeta: objectMeta(spec, svc, ObjectName(spec.App, svc)),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: selector(spec, svc),
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       port,
				TargetPort: intstr.FromString("http"),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

func ingress(spec release.Spec, svc string) *networkingv1.Ingress {
	ing := spec.Ingress
	pathType := networkingv1.PathTypePrefix
	meta := objectMeta(spec, svc, spec.App)

	obj := &networkingv1.Ingress{
		TypeMeta:   metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: KindIngress},
		ObjectMeta: meta,
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				Host: ing.Host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: ObjectName(spec.App, svc),
									Port: networkingv1.ServiceBackendPort{Number: spec.Port(svc)},
								},
							},
						}},
					},
				},
			}},
		},
	}
	if ing.ClassName != "" {
		className := ing.ClassName
		obj.Spec.IngressClassName = &className
	}
	if ing.TLSIssuer != "" {
		obj.Annotations = map[string]string{certIssuerAnnotation: ing.TLSIssuer}
		obj.Spec.TLS = []networkingv1.IngressTLS{{
			Hosts:      []string{ing.Host},
			SecretName: spec.App + "-tls",
		}}
	}
	return obj
}
