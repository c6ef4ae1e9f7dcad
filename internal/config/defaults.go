package config

import (
	"fmt"
	"path/filepath"
	"time"

	"relctl/internal/release"
)

const (
	DefaultStoreFile       = "releases.db"
	DefaultLockNamespace   = "kube-system"
	DefaultServerAddr      = "127.0.0.1:8085"
	DefaultHelmBinary      = "helm"
	DefaultRollbackTimeout = 10 * time.Minute
	DefaultInstallAttempts = 5
	DefaultInstallDelay    = 2 * time.Second
)

// DefaultPrerequisites are the add-ons a three-tier application behind an
// ingress needs: an ingress controller and a certificate manager.
func DefaultPrerequisites() []release.Prerequisite {
	return []release.Prerequisite{
		{
			Name:      "ingress-nginx",
			Namespace: "ingress-nginx",
			Version:   "4.10.0",
			Chart:     "ingress-nginx",
			Repo:      "https://kubernetes.github.io/ingress-nginx",
			Presence:  release.PresenceCheck{Deployment: "ingress-nginx-controller"},
		},
		{
			Name:      "cert-manager",
			Namespace: "cert-manager",
			Version:   "v1.14.5",
			Chart:     "cert-manager",
			Repo:      "https://charts.jetstack.io",
			Values:    map[string]string{"installCRDs": "true"},
			Presence:  release.PresenceCheck{Deployment: "cert-manager"},
		},
	}
}

// GetDefaultConfig returns the configuration used when no file overrides it.
func GetDefaultConfig() RelctlConfig {
	storePath := DefaultStoreFile
	if dir, err := GetUserConfigDir(); err == nil {
		storePath = filepath.Join(dir, DefaultStoreFile)
	}

	return RelctlConfig{
		App:           release.DefaultApp,
		Store:         StoreConfig{Path: storePath},
		Environments:  map[release.EnvironmentKind]release.Profile{},
		Prerequisites: DefaultPrerequisites(),
		Installer: InstallerConfig{
			Attempts:      DefaultInstallAttempts,
			BaseDelay:     DefaultInstallDelay,
			LockNamespace: DefaultLockNamespace,
		},
		Orchestrator: OrchestratorConfig{RollbackTimeout: DefaultRollbackTimeout},
		Server:       ServerConfig{Addr: DefaultServerAddr},
		Helm:         HelmConfig{Binary: DefaultHelmBinary},
	}
}

// Validate reports settings that would make every release fail.
func (c RelctlConfig) Validate() error {
	for kind := range c.Environments {
		switch kind {
		case release.EnvProduction, release.EnvStaging, release.EnvPreview:
		default:
			return fmt.Errorf("environments: unknown environment %q", kind)
		}
	}
	if c.Installer.Attempts < 1 {
		return fmt.Errorf("installer.attempts must be >= 1, got %d", c.Installer.Attempts)
	}
	if c.Installer.BaseDelay <= 0 {
		return fmt.Errorf("installer.baseDelay must be > 0")
	}
	if c.Orchestrator.RollbackTimeout <= 0 {
		return fmt.Errorf("orchestrator.rollbackTimeout must be > 0")
	}
	return nil
}
