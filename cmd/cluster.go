package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relctl/internal/app"
	"relctl/internal/cli"
	"relctl/internal/kube"
)

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Inspect the target cluster",
	}
	cmd.AddCommand(newClusterInfoCmd())
	cmd.AddCommand(newClusterContextsCmd())
	return cmd
}

func newClusterInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the server version and node readiness of the target cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			cfg := newAppConfig()
			if err := app.LoadConfiguration(cfg); err != nil {
				return err
			}
			kc := cfg.RelctlConfig.Kube

			info := cli.ClusterInfo{Context: kc.Context}
			if info.Context == "" {
				if info.Context, err = kube.CurrentContext(kc.Kubeconfig); err != nil {
					return err
				}
			}
			cluster, err := kube.Connect(kc.Kubeconfig, info.Context)
			if err != nil {
				return err
			}
			if info.ServerVersion, err = cluster.ServerVersion(); err != nil {
				return fmt.Errorf("cluster %s is not reachable: %w", info.Context, err)
			}
			nodes, err := cluster.NodeHealth(commandContext(cmd))
			if err != nil {
				return err
			}
			info.ReadyNodes, info.TotalNodes = nodes.ReadyNodes, nodes.TotalNodes
			return printer.Cluster(info)
		},
	}
}

func newClusterContextsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the contexts of the kubeconfig; the current one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := newAppConfig()
			if err := app.LoadConfiguration(cfg); err != nil {
				return err
			}
			kubeconfig := cfg.RelctlConfig.Kube.Kubeconfig

			names, err := kube.Contexts(kubeconfig)
			if err != nil {
				return err
			}
			selected := cfg.RelctlConfig.Kube.Context
			if selected == "" {
				selected, _ = kube.CurrentContext(kubeconfig)
			}
			for _, name := range names {
				marker := " "
				if name == selected {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
