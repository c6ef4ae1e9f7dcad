package app

import (
	"relctl/internal/config"
	"relctl/internal/release"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// ConfigPath, when set, replaces the layered user/project lookup with a
	// single file.
	ConfigPath string

	// Command line overrides of the loaded configuration
	KubeContext string
	Kubeconfig  string
	StorePath   string

	// OnTransition is passed through to the orchestrator.
	OnTransition func(rec release.Record)

	// Loaded configuration, set by NewApplication
	RelctlConfig *config.RelctlConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}

// applyOverrides copies non-empty command line settings over the loaded
// configuration.
func (c *Config) applyOverrides(cfg *config.RelctlConfig) {
	if c.KubeContext != "" {
		cfg.Kube.Context = c.KubeContext
	}
	if c.Kubeconfig != "" {
		cfg.Kube.Kubeconfig = c.Kubeconfig
	}
	if c.StorePath != "" {
		cfg.Store.Path = c.StorePath
	}
}
