package prereq

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"relctl/internal/release"
	"relctl/internal/utils"
	"relctl/pkg/logging"
)

const (
	versionLabel = "app.kubernetes.io/version"
	chartLabel   = "helm.sh/chart"
)

// HelmBackend detects add-ons by their Deployment and installs them with
// `helm upgrade --install`, which is idempotent.
type HelmBackend struct {
	Clientset kubernetes.Interface
	Runner    utils.Runner

	// Binary is the helm executable, "helm" by default.
	Binary      string
	KubeContext string
	Kubeconfig  string
}

var _ Backend = (*HelmBackend)(nil)

// Check looks for the presence Deployment. The installed version is taken
// from the chart label when it names the configured chart, otherwise from
// app.kubernetes.io/version.
func (h *HelmBackend) Check(ctx context.Context, p release.Prerequisite) (Presence, error) {
	dep, err := h.Clientset.AppsV1().Deployments(p.Namespace).Get(ctx, p.Presence.Deployment, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return Presence{}, nil
	}
	if err != nil {
		return Presence{}, fmt.Errorf("get deployment %s/%s: %w", p.Namespace, p.Presence.Deployment, err)
	}
	return Presence{Installed: true, Version: installedVersion(p, dep.Labels)}, nil
}

func installedVersion(p release.Prerequisite, labels map[string]string) string {
	chartName := path.Base(p.Chart)
	if chart, ok := labels[chartLabel]; ok && strings.HasPrefix(chart, chartName+"-") {
		return strings.TrimPrefix(chart, chartName+"-")
	}
	return labels[versionLabel]
}

// Install runs helm upgrade --install for the prerequisite.
func (h *HelmBackend) Install(ctx context.Context, p release.Prerequisite) error {
	binary := h.Binary
	if binary == "" {
		binary = "helm"
	}
	args := h.installArgs(p)
	logging.Debug(subsystem, "Running %s %s", binary, strings.Join(args, " "))

	stdout, _, err := h.Runner.Run(ctx, binary, args...)
	if err != nil {
		return err
	}
	logging.Debug(subsystem, "helm output for %s: %s", p.Name, strings.TrimSpace(stdout))
	return nil
}

func (h *HelmBackend) installArgs(p release.Prerequisite) []string {
	args := []string{"upgrade", "--install", p.HelmRelease(), p.Chart}
	if p.Repo != "" {
		args = append(args, "--repo", p.Repo)
	}
	if p.Version != "" {
		args = append(args, "--version", p.Version)
	}
	args = append(args, "--namespace", p.Namespace, "--create-namespace")

	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--set", k+"="+p.Values[k])
	}

	if h.KubeContext != "" {
		args = append(args, "--kube-context", h.KubeContext)
	}
	if h.Kubeconfig != "" {
		args = append(args, "--kubeconfig", h.Kubeconfig)
	}
	return args
}
