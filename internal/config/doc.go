// Package config provides configuration management for relctl.
//
// Configuration is loaded from multiple sources and merged in order, with
// later sources overriding earlier ones:
//
//  1. Default configuration (compiled in)
//  2. User configuration (~/.config/relctl/config.yaml)
//  3. Project configuration (./.relctl/config.yaml)
//
// Command line flags and RELCTL_* environment variables are applied on top
// by the cmd package.
//
// # Configuration Structure
//
//	app: shop
//	kube:
//	  context: kind-dev
//	store:
//	  path: ~/.config/relctl/releases.db
//	environments:
//	  production:
//	    replicas: {database: 1, backend: 3, frontend: 2}
//	    resources:
//	      backend:
//	        requests: {cpu: 250m, memory: 256Mi}
//	  staging:
//	    namespace: shop-stage
//	prerequisites:
//	  - name: ingress-nginx
//	    namespace: ingress-nginx
//	    version: 4.10.0
//	    chart: ingress-nginx
//	    repo: https://kubernetes.github.io/ingress-nginx
//	    presence: {deployment: ingress-nginx-controller}
//	installer:
//	  attempts: 5
//	  baseDelay: 2s
//	  lockNamespace: kube-system
//	orchestrator:
//	  rollbackTimeout: 10m
//	server:
//	  addr: 127.0.0.1:8085
//
// Prerequisites and environment profiles are merged by name: a later layer
// replaces an entry with the same name and appends new ones.
package config
