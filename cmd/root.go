package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relctl/internal/app"
	"relctl/internal/color"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relctl",
	Short: "Release containerized applications to Kubernetes with health gates and rollback",
	Long: `relctl turns a declarative release spec into a running application.

A release installs the cluster-wide prerequisites (ingress controller,
certificate manager), applies each service in dependency order and waits
for it to become healthy before moving on. When any step fails the
namespace is restored to its last known good release.

Every flag can also be set through the environment, e.g. RELCTL_CONTEXT
or RELCTL_SERVER.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid specs, failed releases)
	SilenceUsage:      true,
	PersistentPreRunE: initGlobals,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "relctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// initGlobals configures logging and the color theme before any command runs.
func initGlobals(cmd *cobra.Command, _ []string) error {
	if err := app.InitLogging(viper.GetBool("debug"), viper.GetString("log-level"), viper.GetString("log-format"), cmd.ErrOrStderr()); err != nil {
		return err
	}
	switch theme := viper.GetString("theme"); theme {
	case "dark":
		color.Initialize(true)
	case "light":
		color.Initialize(false)
	case "auto", "":
	default:
		return fmt.Errorf("unknown theme %q, expected auto, dark or light", theme)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newPrereqCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newClusterCmd())
	rootCmd.AddCommand(serveCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: layered ~/.config/relctl/config.yaml and .relctl/config.yaml)")
	flags.Bool("debug", false, "Enable debug logging, same as --log-level debug")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("theme", "auto", "Color theme: auto, dark or light")
	flags.String("context", "", "Kubeconfig context (default: current context)")
	flags.String("kubeconfig", "", "Path to the kubeconfig file")
	flags.String("store", "", "Path to the release record database")
	flags.String("server", "", "Address of a running 'relctl serve' to use instead of the local cluster")
	flags.StringP("output", "o", "table", "Output format: table, json or yaml")

	viper.SetEnvPrefix("RELCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{"config", "debug", "log-level", "log-format", "theme", "context", "kubeconfig", "store", "server", "output"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}
