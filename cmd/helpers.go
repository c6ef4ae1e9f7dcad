package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relctl/internal/api"
	"relctl/internal/app"
	"relctl/internal/cli"
	"relctl/internal/release"
)

// newAppConfig builds the application configuration from the global flags.
func newAppConfig() *app.Config {
	cfg := app.NewConfig(viper.GetBool("debug"), viper.GetString("config"))
	cfg.KubeContext = viper.GetString("context")
	cfg.Kubeconfig = viper.GetString("kubeconfig")
	cfg.StorePath = viper.GetString("store")
	return cfg
}

// openApplication wires the local services. The caller must Close it.
func openApplication(cfg *app.Config) (*app.Application, error) {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// openReleaser returns the remote API client when --server is set and the
// local orchestrator otherwise.
func openReleaser(cfg *app.Config) (api.Releaser, func(), error) {
	if server := viper.GetString("server"); server != "" {
		return cli.NewClient(server), func() {}, nil
	}
	application, err := openApplication(cfg)
	if err != nil {
		return nil, nil, err
	}
	return application.Services().Orchestrator, func() { _ = application.Close() }, nil
}

func newPrinter(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseOutputFormat(viper.GetString("output"))
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), format), nil
}

// readSpec loads a spec from a file, or from stdin when path is "-".
func readSpec(cmd *cobra.Command, path string) (release.Spec, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return release.Spec{}, fmt.Errorf("failed to read release spec from stdin: %w", err)
		}
		return release.ParseSpec(data)
	}
	return release.LoadSpecFile(path)
}

// applySpecOverrides replaces the environment and individual images of a
// spec. Images are given as service=reference.
func applySpecOverrides(spec *release.Spec, env string, images []string) error {
	if env != "" {
		parsed, err := release.ParseEnvironment(env)
		if err != nil {
			return err
		}
		spec.Environment = parsed
		// A namespace written for another environment no longer applies.
		spec.Namespace = ""
	}
	for _, img := range images {
		svc, ref, ok := strings.Cut(img, "=")
		if !ok || svc == "" {
			return fmt.Errorf("invalid --image %q, expected service=image:tag", img)
		}
		parsed, err := release.ParseImageRef(ref)
		if err != nil {
			return fmt.Errorf("invalid --image %q: %w", img, err)
		}
		if spec.ImageRefs == nil {
			spec.ImageRefs = map[string]release.ImageRef{}
		}
		spec.ImageRefs[svc] = parsed
	}
	return nil
}

// explain expands errors whose message alone would hide the cause.
func explain(err error) error {
	var remote *cli.RemoteError
	if errors.As(err, &remote) {
		if problems := remote.Problems(); len(problems) > 0 {
			return fmt.Errorf("%s: %s", remote.Message, strings.Join(problems, "; "))
		}
	}
	return err
}
