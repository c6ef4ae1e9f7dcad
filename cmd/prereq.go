package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPrereqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prereq",
		Aliases: []string{"prerequisites"},
		Short:   "Inspect and install cluster-wide prerequisites",
		Long: `Inspect and install the cluster-wide prerequisites every release depends on,
such as the ingress controller and the certificate manager.

Prerequisites are configured under 'prerequisites' in the configuration
file. 'relctl release run' ensures them automatically.`,
	}
	cmd.AddCommand(newPrereqStatusCmd())
	cmd.AddCommand(newPrereqEnsureCmd())
	return cmd
}

func newPrereqStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether each prerequisite is installed at the wanted version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			application, err := openApplication(newAppConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			set := application.Config().RelctlConfig.Prerequisites
			statuses := application.Services().Installer.Status(commandContext(cmd), set)
			if err := printer.Prerequisites(statuses); err != nil {
				return err
			}
			for _, st := range statuses {
				if !st.Satisfied {
					return fmt.Errorf("prerequisite %s is not satisfied", st.Prerequisite.Name)
				}
			}
			return nil
		},
	}
}

func newPrereqEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Install missing prerequisites and wait until they are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			application, err := openApplication(newAppConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			set := application.Config().RelctlConfig.Prerequisites
			installed, err := application.Services().Installer.Ensure(commandContext(cmd), set)
			if err != nil {
				return err
			}
			return printer.Installed(installed)
		},
	}
}
