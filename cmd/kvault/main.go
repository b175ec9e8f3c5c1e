package main

import (
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/systmms/kvault/cmd/kvault/commands"
	"github.com/systmms/kvault/internal/config"
	dserrors "github.com/systmms/kvault/internal/errors"
	"github.com/systmms/kvault/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe enclaves on Ctrl-C and on exit
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		memguard.SafeExit(1)
	}
}

func run() error {
	// Global flags
	var (
		noColor     bool
		debug       bool
		showMetrics bool
	)

	// Shell completion runs without PersistentPreRun, so start with a usable logger
	cfg := &config.Config{Logger: logging.New(false, true)}
	app := commands.NewApp(cfg)

	rootCmd := &cobra.Command{
		Use:   "kvault",
		Short: "Azure Key Vault secrets and keys from the command line",
		Long: `kvault reads and manages secrets and keys in an Azure Key Vault.

The vault is selected with --vault (a name or URL), vault.name or vault.url
in kvault.yaml, or the KEYVAULT_ENDPOINT environment variable.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Logger = logging.New(debug, noColor)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if showMetrics {
				if err := writeMetrics(os.Stderr, app.Registry); err != nil {
					cfg.Logger.Warn("Failed to write metrics: %v", err)
				}
			}
			_ = cfg.Logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfg.Path, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&app.Vault, "vault", "", "Vault name or URL (overrides kvault.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print operation metrics to stderr on exit")

	rootCmd.AddCommand(
		commands.NewSecretsCommand(app),
		commands.NewKeysCommand(app),
		commands.NewLoginCommand(app),
		commands.NewDoctorCommand(app),
		commands.NewCompletionCommand(),
	)

	return rootCmd.Execute()
}

// writeMetrics prints the registry in the Prometheus text format.
func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
