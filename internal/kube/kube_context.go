package kube

import (
	"fmt"
	"sort"
	"time"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// requestTimeout bounds every API request made through a loaded config.
const requestTimeout = 30 * time.Second

func loadingRules(kubeconfig string) *clientcmd.ClientConfigLoadingRules {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	return rules
}

// StartingConfig returns the merged kubeconfig. An empty path uses $KUBECONFIG
// or ~/.kube/config.
var StartingConfig = func(kubeconfig string) (*api.Config, error) {
	config, err := loadingRules(kubeconfig).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return config, nil
}

// CurrentContext retrieves the name of the active Kubernetes context.
var CurrentContext = func(kubeconfig string) (string, error) {
	config, err := StartingConfig(kubeconfig)
	if err != nil {
		return "", err
	}
	if config.CurrentContext == "" {
		return "", fmt.Errorf("current kubeconfig context is not set")
	}
	return config.CurrentContext, nil
}

// Contexts returns all context names of the kubeconfig, sorted.
func Contexts(kubeconfig string) ([]string, error) {
	config, err := StartingConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(config.Contexts))
	for name := range config.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RESTConfig builds a client config for the given context. An empty context
// uses the kubeconfig's current context.
var RESTConfig = func(kubeconfig, contextName string) (*rest.Config, error) {
	if contextName != "" {
		config, err := StartingConfig(kubeconfig)
		if err != nil {
			return nil, err
		}
		if _, exists := config.Contexts[contextName]; !exists {
			return nil, fmt.Errorf("context '%s' does not exist in kubeconfig", contextName)
		}
	}

	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules(kubeconfig), overrides)
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", contextName, err)
	}
	restConfig.Timeout = requestTimeout
	restConfig.UserAgent = "relctl"
	return restConfig, nil
}
