package app

import (
	"database/sql"
	"fmt"

	"relctl/internal/health"
	"relctl/internal/kube"
	"relctl/internal/orchestrator"
	"relctl/internal/prereq"
	"relctl/internal/release"
	"relctl/internal/store/sqlite"
	"relctl/internal/utils"
	"relctl/pkg/logging"
)

// Services holds all the initialized services
type Services struct {
	DB           *sql.DB
	Store        release.RecordStore
	Cluster      *kube.Cluster
	Installer    *prereq.Installer
	Gate         *health.Gate
	Orchestrator *orchestrator.Orchestrator
}

// Constructors of the external collaborators; variables for testing.
var (
	openStore      = sqlite.Open
	connectCluster = kube.Connect
	newRunner      = func() utils.Runner { return utils.ExecRunner{} }
)

// InitializeServices opens the record store, connects to the cluster and
// wires the orchestrator. Connecting does not contact the API server.
func InitializeServices(cfg *Config) (*Services, error) {
	rc := cfg.RelctlConfig
	if rc == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	db, err := openStore(rc.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store %s: %w", rc.Store.Path, err)
	}
	logging.Debug("Bootstrap", "Opened record store %s", rc.Store.Path)

	cluster, err := connectCluster(rc.Kube.Kubeconfig, rc.Kube.Context)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	backend := &prereq.HelmBackend{
		Clientset:   cluster.Clientset(),
		Runner:      newRunner(),
		Binary:      rc.Helm.Binary,
		KubeContext: rc.Kube.Context,
		Kubeconfig:  rc.Kube.Kubeconfig,
	}
	opts := []prereq.Option{prereq.WithVerifyBackoff(rc.Installer.Attempts, rc.Installer.BaseDelay)}
	if rc.Installer.ClusterLockEnabled() {
		opts = append(opts, prereq.WithLocker(kube.NewLeaseLock(cluster.Clientset(), rc.Installer.LockNamespace, "")))
	}
	installer := prereq.NewInstaller(backend, opts...)

	gate := health.NewGate(&health.KubeProber{
		Client: cluster,
		HTTP:   &health.HTTPProber{BaseURLs: rc.Health.BaseURLs},
	})

	store := &sqlite.RecordStore{DB: db}

	orch := orchestrator.New(orchestrator.Config{
		App:             rc.App,
		Profiles:        rc.Environments,
		Prerequisites:   rc.Prerequisites,
		RollbackTimeout: rc.Orchestrator.RollbackTimeout,
		OnTransition:    cfg.OnTransition,
	}, orchestrator.Dependencies{
		Client:    cluster,
		Installer: installer,
		Gate:      gate,
		Store:     store,
	})

	return &Services{
		DB:           db,
		Store:        store,
		Cluster:      cluster,
		Installer:    installer,
		Gate:         gate,
		Orchestrator: orch,
	}, nil
}

// Close closes the record store.
func (s *Services) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
