package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relctl/internal/app"
	"relctl/internal/orchestrator"
	"relctl/internal/render"
)

func newRenderCmd() *cobra.Command {
	var (
		file   string
		env    string
		images []string
	)

	cmd := &cobra.Command{
		Use:   "render -f <spec.yaml>",
		Short: "Print the Kubernetes manifests of a release without applying them",
		Long: `Print the Kubernetes manifests of a release without applying them.

The spec is validated and the environment profile from the configuration is
applied exactly as 'relctl release run' would. Neither the cluster nor the
record store is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(cmd, file)
			if err != nil {
				return err
			}
			if err := applySpecOverrides(&spec, env, images); err != nil {
				return err
			}

			cfg := newAppConfig()
			if err := app.LoadConfiguration(cfg); err != nil {
				return err
			}
			rc := cfg.RelctlConfig
			preparer := orchestrator.New(orchestrator.Config{App: rc.App, Profiles: rc.Environments}, orchestrator.Dependencies{})

			_, objs, err := preparer.Prepare(spec)
			if err != nil {
				return err
			}
			manifest, err := render.Manifest(objs)
			if err != nil {
				return fmt.Errorf("failed to encode manifests: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(manifest)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Release spec file, - for stdin")
	cmd.Flags().StringVar(&env, "env", "", "Override the environment: production, staging or preview:<id>")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Override a service image, service=image:tag (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
