package app

import (
	"fmt"
	"io"

	"relctl/internal/config"
	"relctl/pkg/logging"
)

// Application is the main application structure that bootstraps relctl
type Application struct {
	config   *Config
	services *Services
}

// loadConfig and loadConfigFile are variables for testing.
var (
	loadConfig     = config.LoadConfig
	loadConfigFile = config.LoadConfigFile
)

// InitLogging configures the process-wide logger. debug forces the debug
// level regardless of level.
func InitLogging(debug bool, level, format string, output io.Writer) error {
	logLevel, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	if debug {
		logLevel = logging.LevelDebug
	}
	switch logging.Format(format) {
	case logging.FormatText, "":
		logging.InitForCLI(logLevel, output)
	case logging.FormatJSON:
		logging.Init(logLevel, logging.FormatJSON, output)
	default:
		return fmt.Errorf("unknown log format %q, expected text or json", format)
	}
	return nil
}

// LoadConfiguration loads the layered configuration, or the single file
// named by cfg.ConfigPath, and applies the command line overrides. The
// result is stored in cfg.RelctlConfig.
func LoadConfiguration(cfg *Config) error {
	var relctlCfg config.RelctlConfig
	var err error

	if cfg.ConfigPath != "" {
		relctlCfg, err = loadConfigFile(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load relctl configuration from %s", cfg.ConfigPath)
			return fmt.Errorf("failed to load relctl configuration from %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)
	} else {
		relctlCfg, err = loadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load relctl configuration")
			return fmt.Errorf("failed to load relctl configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	cfg.applyOverrides(&relctlCfg)
	cfg.RelctlConfig = &relctlCfg
	return nil
}

// NewApplication loads the configuration and wires every service.
func NewApplication(cfg *Config) (*Application, error) {
	if err := LoadConfiguration(cfg); err != nil {
		return nil, err
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Config returns the application configuration, including the loaded file.
func (a *Application) Config() *Config {
	return a.config
}

// Services returns the wired services.
func (a *Application) Services() *Services {
	return a.services
}

// Close releases the record store.
func (a *Application) Close() error {
	return a.services.Close()
}
