package config

import (
	"time"

	"relctl/internal/release"
)

// RelctlConfig is the top-level configuration structure for relctl.
type RelctlConfig struct {
	// App names the application when a release spec does not.
	App  string     `yaml:"app,omitempty"`
	Kube KubeConfig `yaml:"kube"`

	Store StoreConfig `yaml:"store"`

	// Environments holds the per-environment profile: namespace override,
	// default replicas and resources.
	Environments map[release.EnvironmentKind]release.Profile `yaml:"environments,omitempty"`

	// Prerequisites are the cluster-wide add-ons ensured before every
	// release.
	Prerequisites []release.Prerequisite `yaml:"prerequisites,omitempty"`

	Installer    InstallerConfig    `yaml:"installer"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Health       HealthConfig       `yaml:"health"`
	Server       ServerConfig       `yaml:"server"`
	Helm         HelmConfig         `yaml:"helm"`
}

// KubeConfig selects the cluster.
type KubeConfig struct {
	Context    string `yaml:"context,omitempty"`    // kubeconfig context, current context when empty
	Kubeconfig string `yaml:"kubeconfig,omitempty"` // path, default loading rules when empty
}

// StoreConfig locates the release record database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// InstallerConfig tunes the prerequisite installer.
type InstallerConfig struct {
	Attempts  int           `yaml:"attempts,omitempty"`
	BaseDelay time.Duration `yaml:"baseDelay,omitempty"`
	// LockNamespace holds the Leases that serialize installs across
	// processes.
	LockNamespace string `yaml:"lockNamespace,omitempty"`
	ClusterLock   *bool  `yaml:"clusterLock,omitempty"`
}

// ClusterLockEnabled reports whether installs take a cluster-wide Lease.
func (c InstallerConfig) ClusterLockEnabled() bool {
	return c.ClusterLock == nil || *c.ClusterLock
}

// OrchestratorConfig tunes release execution.
type OrchestratorConfig struct {
	RollbackTimeout time.Duration `yaml:"rollbackTimeout,omitempty"`
}

// HealthConfig tunes health probing.
type HealthConfig struct {
	// BaseURLs maps a service to a URL that is probed directly instead of
	// through the API server's service proxy.
	BaseURLs map[string]string `yaml:"baseURLs,omitempty"`
}

// ServerConfig configures `relctl serve`.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// HelmConfig locates the helm binary used to install prerequisites.
type HelmConfig struct {
	Binary string `yaml:"binary,omitempty"`
}
