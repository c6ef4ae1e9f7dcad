package release

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// DefaultApp is used when neither the spec nor the configuration names the
// application.
const DefaultApp = "app"

// Spec declares the intended state for one release attempt.
type Spec struct {
	App              string                    `yaml:"app,omitempty" json:"app,omitempty"`
	Environment      Environment               `yaml:"environment" json:"environment"`
	Namespace        string                    `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	ImageRefs        map[string]ImageRef       `yaml:"imageRefs" json:"imageRefs"`
	AllowMutableTags bool                      `yaml:"allowMutableTags,omitempty" json:"allowMutableTags,omitempty"`
	Replicas         map[string]int32          `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	HealthChecks     map[string]HealthCheck    `yaml:"healthChecks" json:"healthChecks"`
	DependencyOrder  []string                  `yaml:"dependencyOrder" json:"dependencyOrder"`
	Services         map[string]ServiceOptions `yaml:"services,omitempty" json:"services,omitempty"`
	Resources        map[string]Resources      `yaml:"resources,omitempty" json:"resources,omitempty"`
	Ingress          *Ingress                  `yaml:"ingress,omitempty" json:"ingress,omitempty"`
}

// ParseSpec decodes a YAML release spec. Unknown fields are rejected.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return Spec{}, &InvalidSpecError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	return spec, nil
}

// LoadSpecFile reads and decodes a release spec from disk.
func LoadSpecFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read release spec %s: %w", path, err)
	}
	return ParseSpec(data)
}

// DefaultNamespace derives the namespace for an app in an environment.
func DefaultNamespace(app string, env Environment) string {
	return app + "-" + env.Slug()
}

// WithDefaults returns a copy of the spec with the profile and built-in
// defaults applied. The receiver is not modified.
func (s Spec) WithDefaults(defaultApp string, profile Profile) Spec {
	out := s.Clone()
	if out.App == "" {
		out.App = defaultApp
	}
	if out.App == "" {
		out.App = DefaultApp
	}
	if out.Namespace == "" && !out.Environment.IsZero() {
		if profile.Namespace != "" && out.Environment.Kind != EnvPreview {
			out.Namespace = profile.Namespace
		} else {
			out.Namespace = DefaultNamespace(out.App, out.Environment)
		}
	}

	if out.Replicas == nil {
		out.Replicas = make(map[string]int32)
	}
	if out.Resources == nil && len(profile.Resources) > 0 {
		out.Resources = make(map[string]Resources)
	}
	for _, svc := range out.DependencyOrder {
		if _, ok := out.Replicas[svc]; !ok {
			if n, ok := profile.Replicas[svc]; ok {
				out.Replicas[svc] = n
			}
		}
		if _, ok := out.Resources[svc]; !ok {
			if r, ok := profile.Resources[svc]; ok {
				out.Resources[svc] = r
			}
		}
		if hc, ok := out.HealthChecks[svc]; ok {
			out.HealthChecks[svc] = hc.WithDefaults()
		}
	}
	return out
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	out := s
	out.DependencyOrder = append([]string(nil), s.DependencyOrder...)
	if s.ImageRefs != nil {
		out.ImageRefs = make(map[string]ImageRef, len(s.ImageRefs))
		for k, v := range s.ImageRefs {
			out.ImageRefs[k] = v
		}
	}
	if s.Replicas != nil {
		out.Replicas = make(map[string]int32, len(s.Replicas))
		for k, v := range s.Replicas {
			out.Replicas[k] = v
		}
	}
	if s.HealthChecks != nil {
		out.HealthChecks = make(map[string]HealthCheck, len(s.HealthChecks))
		for k, v := range s.HealthChecks {
			out.HealthChecks[k] = v
		}
	}
	if s.Services != nil {
		out.Services = make(map[string]ServiceOptions, len(s.Services))
		for k, v := range s.Services {
			v.Env = copyStrings(v.Env)
			out.Services[k] = v
		}
	}
	if s.Resources != nil {
		out.Resources = make(map[string]Resources, len(s.Resources))
		for k, v := range s.Resources {
			out.Resources[k] = Resources{Requests: copyStrings(v.Requests), Limits: copyStrings(v.Limits)}
		}
	}
	if s.Ingress != nil {
		ing := *s.Ingress
		out.Ingress = &ing
	}
	return out
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Port returns the container port of a service.
func (s Spec) Port(service string) int32 {
	if opts, ok := s.Services[service]; ok && opts.Port != 0 {
		return opts.Port
	}
	return DefaultServicePort
}

// ExposedService returns the service routed by the ingress, if any.
func (s Spec) ExposedService() (string, bool) {
	for _, svc := range s.DependencyOrder {
		if s.Services[svc].Expose {
			return svc, true
		}
	}
	return "", false
}

// Validate checks every data-model invariant and reports all violations at
// once. It expects defaults to have been applied.
func (s Spec) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !dnsLabel.MatchString(s.App) {
		add("app %q must be a lowercase DNS label", s.App)
	}
	switch s.Environment.Kind {
	case EnvProduction, EnvStaging, EnvPreview:
	case "":
		add("environment is required")
	default:
		add("unknown environment %q", s.Environment.Kind)
	}
	if s.Namespace == "" {
		add("namespace is required")
	} else if !dnsLabel.MatchString(s.Namespace) || len(s.Namespace) > 63 {
		add("namespace %q must be a DNS label of at most 63 characters", s.Namespace)
	}

	if len(s.DependencyOrder) == 0 {
		add("dependencyOrder must name at least one service")
	}
	seen := make(map[string]bool, len(s.DependencyOrder))
	for _, svc := range s.DependencyOrder {
		if seen[svc] {
			add("service %q appears more than once in dependencyOrder", svc)
			continue
		}
		seen[svc] = true
		if !dnsLabel.MatchString(svc) {
			add("service name %q must be a lowercase DNS label", svc)
		}
		if len(s.App)+1+len(svc) > 63 {
			add("object name %s-%s exceeds 63 characters", s.App, svc)
		}

		if ref, ok := s.ImageRefs[svc]; !ok {
			add("service %q has no imageRefs entry", svc)
		} else if err := ref.validate(s.AllowMutableTags); err != nil {
			add("imageRefs[%s]: %v", svc, err)
		}

		if n, ok := s.Replicas[svc]; !ok {
			add("service %q has no replicas entry", svc)
		} else if n < 0 {
			add("replicas[%s] must be >= 0, got %d", svc, n)
		}

		if hc, ok := s.HealthChecks[svc]; !ok {
			add("service %q has no healthChecks entry", svc)
		} else {
			for _, p := range validateHealthCheck(hc) {
				add("healthChecks[%s]: %s", svc, p)
			}
		}

		if opts, ok := s.Services[svc]; ok && (opts.Port < 0 || opts.Port > 65535) {
			add("services[%s].port %d out of range", svc, opts.Port)
		}
		if res, ok := s.Resources[svc]; ok {
			for _, p := range validateResources(res) {
				add("resources[%s]: %s", svc, p)
			}
		}
	}

	for _, svc := range unknownKeys(seen, keysOf(s.ImageRefs)) {
		add("imageRefs names %q which is not in dependencyOrder", svc)
	}
	for _, svc := range unknownKeys(seen, keysOf(s.Replicas)) {
		add("replicas names %q which is not in dependencyOrder", svc)
	}
	for _, svc := range unknownKeys(seen, keysOf(s.HealthChecks)) {
		add("healthChecks names %q which is not in dependencyOrder", svc)
	}
	for _, svc := range unknownKeys(seen, keysOf(s.Services)) {
		add("services names %q which is not in dependencyOrder", svc)
	}
	for _, svc := range unknownKeys(seen, keysOf(s.Resources)) {
		add("resources names %q which is not in dependencyOrder", svc)
	}

	exposed := 0
	for _, svc := range s.DependencyOrder {
		if s.Services[svc].Expose {
			exposed++
		}
	}
	if s.Ingress != nil {
		if s.Ingress.Host == "" {
			add("ingress.host is required")
		}
		if exposed != 1 {
			add("ingress requires exactly one service with expose: true, found %d", exposed)
		}
	} else if exposed > 0 {
		add("services marked expose require an ingress section")
	}

	if len(problems) > 0 {
		return &InvalidSpecError{Problems: problems}
	}
	return nil
}

func validateHealthCheck(hc HealthCheck) []string {
	var problems []string
	if hc.ExpectedStatus < 100 || hc.ExpectedStatus > 599 {
		problems = append(problems, fmt.Sprintf("expectedStatus %d is not an HTTP status", hc.ExpectedStatus))
	}
	if hc.TimeoutSeconds <= 0 {
		problems = append(problems, "timeoutSeconds must be > 0")
	}
	if hc.IntervalSeconds < 0 {
		problems = append(problems, "intervalSeconds must be >= 0")
	}
	if hc.MaxAttempts < 1 {
		problems = append(problems, "maxAttempts must be >= 1")
	}
	if hc.Path != "" && hc.Path[0] != '/' {
		problems = append(problems, fmt.Sprintf("path %q must start with /", hc.Path))
	}
	return problems
}

func validateResources(res Resources) []string {
	var problems []string
	check := func(kind string, m map[string]string) {
		for _, name := range sortedKeys(m) {
			if _, err := resource.ParseQuantity(m[name]); err != nil {
				problems = append(problems, fmt.Sprintf("%s.%s: %v", kind, name, err))
			}
		}
	}
	check("requests", res.Requests)
	check("limits", res.Limits)
	return problems
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]string) []string {
	return keysOf(m)
}

func unknownKeys(known map[string]bool, keys []string) []string {
	var out []string
	for _, k := range keys {
		if !known[k] {
			out = append(out, k)
		}
	}
	return out
}

// SortedEnv returns the keys of an env map in a stable order.
func SortedEnv(env map[string]string) []string {
	return sortedKeys(env)
}
