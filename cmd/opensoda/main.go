// Command opensoda serves and runs the OpenSODA project analytics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HaoJinjin/open-soda/internal/config"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "opensoda",
		Short: "Open-source project analytics: fork prediction, indicator statistics, response time forecasts",
		Long: `opensoda analyses a CSV of per-project OpenSODA metrics.

It can run as an HTTP service (serve) or compute a single result and
print it as JSON (predict, indicators, response-time).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := log.SetupLoggerWithWriter(cmd.ErrOrStderr(), cfg.Log.Level); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newPredictCmd(opts),
		newIndicatorsCmd(opts),
		newResponseTimeCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
