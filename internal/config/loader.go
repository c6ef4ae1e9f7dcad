package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"relctl/internal/release"
	"relctl/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	subsystem        = "Config"
	userConfigDir    = ".config/relctl"
	projectConfigDir = ".relctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the relctl configuration by layering default, user, and
// project settings.
func LoadConfig() (RelctlConfig, error) {
	config := GetDefaultConfig()

	for _, layer := range []struct {
		name string
		path func() (string, error)
	}{
		{"user", getUserConfigPath},
		{"project", getProjectConfigPath},
	} {
		path, err := layer.path()
		if err != nil {
			// Optional layer.
			logging.Warn(subsystem, "Could not determine %s config path: %v", layer.name, err)
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		overlay, err := loadConfigFromFile(path)
		if err != nil {
			return RelctlConfig{}, fmt.Errorf("error loading %s config from %s: %w", layer.name, path, err)
		}
		logging.Debug(subsystem, "Loaded %s config from %s", layer.name, path)
		config = mergeConfigs(config, overlay)
	}

	return config, config.Validate()
}

// LoadConfigFile layers a single explicit file over the defaults, skipping
// the user and project files.
func LoadConfigFile(path string) (RelctlConfig, error) {
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return RelctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), overlay)
	return config, config.Validate()
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a RelctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (RelctlConfig, error) {
	var config RelctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return RelctlConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return RelctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Scalars are
// replaced when set; prerequisites and profiles are replaced by name.
func mergeConfigs(base, overlay RelctlConfig) RelctlConfig {
	merged := base

	if overlay.App != "" {
		merged.App = overlay.App
	}
	if overlay.Kube.Context != "" {
		merged.Kube.Context = overlay.Kube.Context
	}
	if overlay.Kube.Kubeconfig != "" {
		merged.Kube.Kubeconfig = overlay.Kube.Kubeconfig
	}
	if overlay.Store.Path != "" {
		merged.Store.Path = overlay.Store.Path
	}

	merged.Environments = make(map[release.EnvironmentKind]release.Profile, len(base.Environments))
	for kind, profile := range base.Environments {
		merged.Environments[kind] = profile
	}
	for kind, profile := range overlay.Environments {
		merged.Environments[kind] = profile
	}

	// Keep base order, replace by name, append new ones.
	merged.Prerequisites = nil
	replaced := make(map[string]bool)
	overlayByName := make(map[string]release.Prerequisite, len(overlay.Prerequisites))
	for _, p := range overlay.Prerequisites {
		overlayByName[p.Name] = p
	}
	for _, p := range base.Prerequisites {
		if o, ok := overlayByName[p.Name]; ok {
			p = o
			replaced[p.Name] = true
		}
		merged.Prerequisites = append(merged.Prerequisites, p)
	}
	for _, p := range overlay.Prerequisites {
		if !replaced[p.Name] {
			merged.Prerequisites = append(merged.Prerequisites, p)
		}
	}

	if overlay.Installer.Attempts != 0 {
		merged.Installer.Attempts = overlay.Installer.Attempts
	}
	if overlay.Installer.BaseDelay != 0 {
		merged.Installer.BaseDelay = overlay.Installer.BaseDelay
	}
	if overlay.Installer.LockNamespace != "" {
		merged.Installer.LockNamespace = overlay.Installer.LockNamespace
	}
	// Merge ClusterLock only if explicitly set in overlay
	if overlay.Installer.ClusterLock != nil {
		v := *overlay.Installer.ClusterLock
		merged.Installer.ClusterLock = &v
	}

	if overlay.Orchestrator.RollbackTimeout != 0 {
		merged.Orchestrator.RollbackTimeout = overlay.Orchestrator.RollbackTimeout
	}

	if len(overlay.Health.BaseURLs) > 0 {
		urls := make(map[string]string, len(base.Health.BaseURLs)+len(overlay.Health.BaseURLs))
		for svc, u := range base.Health.BaseURLs {
			urls[svc] = u
		}
		for svc, u := range overlay.Health.BaseURLs {
			urls[svc] = u
		}
		merged.Health.BaseURLs = urls
	}

	if overlay.Server.Addr != "" {
		merged.Server.Addr = overlay.Server.Addr
	}
	if overlay.Helm.Binary != "" {
		merged.Helm.Binary = overlay.Helm.Binary
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
