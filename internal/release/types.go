package release

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// EnvironmentKind is the class of environment a release targets.
type EnvironmentKind string

const (
	EnvProduction EnvironmentKind = "production"
	EnvStaging    EnvironmentKind = "staging"
	EnvPreview    EnvironmentKind = "preview"
)

var dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// Environment selects the target namespace and the default profile. Preview
// environments carry an identifier, e.g. a pull request number.
type Environment struct {
	Kind      EnvironmentKind
	PreviewID string
}

// ParseEnvironment parses "production", "staging" or "preview:<id>".
func ParseEnvironment(s string) (Environment, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(EnvProduction):
		return Environment{Kind: EnvProduction}, nil
	case s == string(EnvStaging):
		return Environment{Kind: EnvStaging}, nil
	case strings.HasPrefix(s, string(EnvPreview)+":"):
		id := strings.TrimPrefix(s, string(EnvPreview)+":")
		if !dnsLabel.MatchString(id) || len(id) > 40 {
			return Environment{}, fmt.Errorf("invalid preview id %q: must be a lowercase DNS label of at most 40 characters", id)
		}
		return Environment{Kind: EnvPreview, PreviewID: id}, nil
	case s == string(EnvPreview):
		return Environment{}, fmt.Errorf("preview environment requires an id, e.g. preview:pr-42")
	}
	return Environment{}, fmt.Errorf("unknown environment %q", s)
}

// String returns the textual form accepted by ParseEnvironment.
func (e Environment) String() string {
	if e.Kind == EnvPreview {
		return string(EnvPreview) + ":" + e.PreviewID
	}
	return string(e.Kind)
}

// Slug returns a DNS-safe form used in namespace names.
func (e Environment) Slug() string {
	if e.Kind == EnvPreview {
		return string(EnvPreview) + "-" + e.PreviewID
	}
	return string(e.Kind)
}

// IsZero reports whether the environment was never set.
func (e Environment) IsZero() bool {
	return e.Kind == ""
}

func (e Environment) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseEnvironment(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e Environment) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*e = Environment{}
		return nil
	}
	parsed, err := ParseEnvironment(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// MutableTag is the only tag that is resolved by the registry at pull time.
const MutableTag = "latest"

// ImageRef points at a container image. Tag is either a tag name or a
// content digest ("sha256:...").
type ImageRef struct {
	Registry   string `yaml:"registry,omitempty" json:"registry,omitempty"`
	Repository string `yaml:"repository" json:"repository"`
	Tag        string `yaml:"tag" json:"tag"`
}

// ParseImageRef splits "registry/repository:tag" or "repository@sha256:..."
// into its parts. The registry is only recognised when the first path
// component looks like a host.
func ParseImageRef(s string) (ImageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImageRef{}, fmt.Errorf("empty image reference")
	}

	var ref ImageRef
	name := s
	if at := strings.LastIndex(s, "@"); at >= 0 {
		name, ref.Tag = s[:at], s[at+1:]
	} else if colon := strings.LastIndex(s, ":"); colon > strings.LastIndex(s, "/") {
		name, ref.Tag = s[:colon], s[colon+1:]
	}

	if slash := strings.Index(name, "/"); slash >= 0 {
		first := name[:slash]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			ref.Registry, name = first, name[slash+1:]
		}
	}
	ref.Repository = name
	if ref.Repository == "" {
		return ImageRef{}, fmt.Errorf("image reference %q has no repository", s)
	}
	return ref, nil
}

// IsDigest reports whether the tag is a content digest.
func (r ImageRef) IsDigest() bool {
	return strings.Contains(r.Tag, ":")
}

// String renders the reference the way a container runtime expects it.
func (r ImageRef) String() string {
	name := r.Repository
	if r.Registry != "" {
		name = r.Registry + "/" + r.Repository
	}
	switch {
	case r.Tag == "":
		return name
	case r.IsDigest():
		return name + "@" + r.Tag
	}
	return name + ":" + r.Tag
}

func (r ImageRef) validate(allowMutable bool) error {
	if r.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if r.Tag == "" {
		return fmt.Errorf("tag is required")
	}
	if r.IsDigest() {
		if _, err := digest.Parse(r.Tag); err != nil {
			return fmt.Errorf("invalid digest %q: %w", r.Tag, err)
		}
		return nil
	}
	if r.Tag == MutableTag && !allowMutable {
		return fmt.Errorf("tag %q is mutable; pin an immutable tag or set allowMutableTags", MutableTag)
	}
	return nil
}

// UnmarshalYAML accepts either the mapping form or a "repo:tag" scalar.
func (r *ImageRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseImageRef(value.Value)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	type plain ImageRef
	return value.Decode((*plain)(r))
}

const (
	DefaultExpectedStatus  = 200
	DefaultTimeoutSeconds  = 5
	DefaultIntervalSeconds = 5
	DefaultMaxAttempts     = 5
	DefaultServicePort     = 8080
)

// HealthCheck describes how a service proves it is ready for traffic. An
// empty Path means workload readiness alone decides.
type HealthCheck struct {
	Path            string `yaml:"path,omitempty" json:"path,omitempty"`
	ExpectedStatus  int    `yaml:"expectedStatus,omitempty" json:"expectedStatus,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
	IntervalSeconds int    `yaml:"intervalSeconds,omitempty" json:"intervalSeconds,omitempty"`
	MaxAttempts     int    `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
}

// WithDefaults fills unset fields.
func (h HealthCheck) WithDefaults() HealthCheck {
	if h.ExpectedStatus == 0 {
		h.ExpectedStatus = DefaultExpectedStatus
	}
	if h.TimeoutSeconds == 0 {
		h.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if h.IntervalSeconds == 0 {
		h.IntervalSeconds = DefaultIntervalSeconds
	}
	if h.MaxAttempts == 0 {
		h.MaxAttempts = DefaultMaxAttempts
	}
	return h
}

// Timeout is the budget for a single poll.
func (h HealthCheck) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// Interval is the pause between polls.
func (h HealthCheck) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

// ServiceOptions carries the per-service settings needed to render workloads.
type ServiceOptions struct {
	Port     int32             `yaml:"port,omitempty" json:"port,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Stateful bool              `yaml:"stateful,omitempty" json:"stateful,omitempty"`
	Expose   bool              `yaml:"expose,omitempty" json:"expose,omitempty"`
}

// Resources holds container resource quantities, keyed by resource name
// ("cpu", "memory").
type Resources struct {
	Requests map[string]string `yaml:"requests,omitempty" json:"requests,omitempty"`
	Limits   map[string]string `yaml:"limits,omitempty" json:"limits,omitempty"`
}

// Ingress exposes the service marked Expose under Host.
type Ingress struct {
	Host      string `yaml:"host" json:"host"`
	ClassName string `yaml:"className,omitempty" json:"className,omitempty"`
	TLSIssuer string `yaml:"tlsIssuer,omitempty" json:"tlsIssuer,omitempty"`
}

// Profile holds the per-environment defaults applied to a spec.
type Profile struct {
	Namespace string               `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Replicas  map[string]int32     `yaml:"replicas,omitempty" json:"replicas,omitempty"`
	Resources map[string]Resources `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// PresenceCheck names the object whose existence proves a prerequisite is
// installed.
type PresenceCheck struct {
	Deployment string `yaml:"deployment" json:"deployment"`
}

// Prerequisite is a cluster-wide add-on that must exist before any release
// resources are meaningful.
type Prerequisite struct {
	Name        string            `yaml:"name" json:"name"`
	Namespace   string            `yaml:"namespace" json:"namespace"`
	Version     string            `yaml:"version" json:"version"`
	Chart       string            `yaml:"chart" json:"chart"`
	Repo        string            `yaml:"repo,omitempty" json:"repo,omitempty"`
	ReleaseName string            `yaml:"releaseName,omitempty" json:"releaseName,omitempty"`
	Values      map[string]string `yaml:"values,omitempty" json:"values,omitempty"`
	Presence    PresenceCheck     `yaml:"presence" json:"presence"`
}

// HelmRelease returns the helm release name, defaulting to Name.
func (p Prerequisite) HelmRelease() string {
	if p.ReleaseName != "" {
		return p.ReleaseName
	}
	return p.Name
}
