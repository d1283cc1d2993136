// Package cmd provides the command-line interface for netsim.
package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

// envPrefix prefixes the environment variables that provide flag defaults.
const envPrefix = "NETSIM_"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netsim",
	Short: "netsim runs discrete-event network simulations.",
	Long: `netsim runs discrete-event network simulations of point-to-point ` +
		`links and CSMA LANs. Topologies are described in YAML or JSON ` +
		`files. Without a file, the built-in city scenario is used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFile(); err != nil {
			return err
		}

		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}

		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), level, format))

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info",
		"Log level: debug, info, warn, or error.")
	rootCmd.PersistentFlags().String("log-format", "text",
		"Log format: text or json.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// loadEnvFile reads the .env file in the working directory, if any.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// applyEnv fills the flags that are not set on the command line from
// NETSIM_* environment variables. The flag "monitor-port" reads
// NETSIM_MONITOR_PORT.
func applyEnv(flags *pflag.FlagSet) error {
	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || err != nil {
			return
		}

		key := envPrefix +
			strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		value, found := os.LookupEnv(key)
		if !found {
			return
		}

		if setErr := flags.Set(f.Name, value); setErr != nil {
			err = errors.Join(err, setErr)
		}
	})

	return err
}
