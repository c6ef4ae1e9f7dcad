package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relctl/internal/kube"
	"relctl/internal/release"
)

// KubeProber checks workload readiness and then, when the health check has
// a path, issues an HTTP GET through the API server's service proxy.
type KubeProber struct {
	Client kube.Client

	// HTTP, when set, replaces the service proxy for services it has a base
	// URL for, e.g. preview environments reachable through their ingress.
	HTTP *HTTPProber
}

var _ Prober = (*KubeProber)(nil)

func (p *KubeProber) Probe(ctx context.Context, target Target, check release.HealthCheck) error {
	status, err := p.Client.Status(ctx, kube.WorkloadRef{Namespace: target.Namespace, Name: target.Workload})
	if err != nil {
		return err
	}
	if !status.Exists {
		return fmt.Errorf("deployment %s not found", target)
	}
	if !status.Converged() {
		return fmt.Errorf("deployment %s not rolled out: %d/%d ready, %d updated, %d available",
			target, status.Ready, status.Desired, status.Updated, status.Available)
	}
	// A scaled down service has no endpoints to probe.
	if check.Path == "" || status.Desired == 0 {
		return nil
	}

	if p.HTTP != nil && p.HTTP.BaseURLs[target.Service] != "" {
		return p.HTTP.Probe(ctx, target, check)
	}
	code, err := p.Client.ProxyGet(ctx, target.Namespace, target.Workload, target.Port, check.Path)
	if err != nil {
		return fmt.Errorf("failed to probe %s%s: %w", target, check.Path, err)
	}
	if code != check.ExpectedStatus {
		return fmt.Errorf("GET %s%s returned %d, expected %d", target, check.Path, code, check.ExpectedStatus)
	}
	return nil
}

// HTTPProber probes services directly over HTTP.
type HTTPProber struct {
	// BaseURLs maps a service to the URL its health path is resolved
	// against.
	BaseURLs map[string]string
	Client   *http.Client
}

var _ Prober = (*HTTPProber)(nil)

func (p *HTTPProber) Probe(ctx context.Context, target Target, check release.HealthCheck) error {
	base, ok := p.BaseURLs[target.Service]
	if !ok {
		return fmt.Errorf("no base URL configured for service %s", target.Service)
	}
	url := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(check.Path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: check.WithDefaults().Timeout() + time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	expected := check.WithDefaults().ExpectedStatus
	if resp.StatusCode != expected {
		return fmt.Errorf("GET %s returned %d, expected %d", url, resp.StatusCode, expected)
	}
	return nil
}
