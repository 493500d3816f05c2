package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/HaoJinjin/open-soda/internal/indicators"
	"github.com/HaoJinjin/open-soda/internal/prediction"
	"github.com/HaoJinjin/open-soda/internal/responsetime"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

// output holds the flags shared by the one-shot commands.
type output struct {
	csvPath string
	outPath string
}

func (o *output) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.csvPath, "csv", "", "Input CSV (defaults to data.csv_path from config)")
	cmd.Flags().StringVarP(&o.outPath, "out", "o", "", "Write JSON here instead of stdout")
}

func (o *output) path(opts *options) string {
	if o.csvPath != "" {
		return o.csvPath
	}
	return opts.cfg.Data.CSVPath
}

func (o *output) write(cmd *cobra.Command, v any) error {
	var w io.Writer = cmd.OutOrStdout()
	if o.outPath != "" {
		f, err := os.Create(o.outPath)
		if err != nil {
			return errors.Wrapf(err, "create %s", o.outPath)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return errors.Wrap(enc.Encode(v), "write result")
}

func newPredictCmd(opts *options) *cobra.Command {
	var (
		out    output
		target string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Train the model bank on a target column and print the comparison",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = opts.cfg.Data.ForkTarget
			}
			pipeline := prediction.NewPipeline(
				prediction.WithTestSize(opts.cfg.Prediction.TestSize),
				prediction.WithSeed(opts.cfg.Prediction.Seed),
			)
			result, err := pipeline.RunFile(out.path(opts), target)
			if err != nil {
				return err
			}
			return out.write(cmd, result)
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "Target column (defaults to data.fork_target)")
	return cmd
}

func newIndicatorsCmd(opts *options) *cobra.Command {
	var out output
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Print descriptive statistics and correlations of the activity indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := indicators.ComputeFile(out.path(opts))
			if err != nil {
				return err
			}
			return out.write(cmd, stats)
		},
	}
	out.bind(cmd)
	return cmd
}

func newResponseTimeCmd(opts *options) *cobra.Command {
	var out output
	cmd := &cobra.Command{
		Use:   "response-time",
		Short: "Forecast change request response time for the next six months",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.GetLoggerWithName("response-time")
			result, err := responsetime.PredictFile(out.path(opts), func(progress int, message string) {
				logger.Info(message, log.ProgressKey, progress)
			})
			if err != nil {
				return err
			}
			return out.write(cmd, result)
		},
	}
	out.bind(cmd)
	return cmd
}
