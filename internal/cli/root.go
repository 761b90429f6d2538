// Package cli implements the carboncounter command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/carboncounter/internal/config"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // set once in PersistentPreRunE

// rootOptions carries state resolved by the root command to subcommands.
type rootOptions struct {
	configPath string
	debug      bool
	offline    bool
	cfg        *config.Config
}

// NewRootCmd creates the root Cobra command for the carboncounter CLI.
func NewRootCmd(ver string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "carboncounter",
		Short:         "Track driving sessions and estimate their CO2 emissions",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			config.CloseLogFile()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CARBONCOUNTER_HOME/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "do not contact the leaderboard backend")

	cmd.AddCommand(
		newTrackCmd(opts),
		newServeCmd(opts),
		newVehicleCmd(opts),
		newReportCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

const rootCmdExample = `  # Replay a recorded drive for a 2020 Toyota Corolla
  carboncounter track --fixes drive.csv --year 2020 --make Toyota --model Corolla

  # Run the ingest server with the midnight rollover
  carboncounter serve

  # Show today's emissions, the rolling buffers and your leaderboard rank
  carboncounter report --rank

  # Pick a vehicle
  carboncounter vehicle makes 2020
  carboncounter vehicle set 2020 Toyota Corolla

  # Write the default configuration
  carboncounter config init`

// setup loads configuration and initialises logging.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	o.cfg = cfg

	level := cfg.Logging.Level
	logFile := cfg.Logging.File
	if o.debug {
		level = "debug"
		logFile = ""
	}
	if logFile != "" {
		if dirErr := config.EnsureLogDir(logFile); dirErr != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not create log directory: %v\n", dirErr)
			logFile = ""
		}
	}
	if logErr := config.InitLogger(level, logFile); logErr != nil {
		return fmt.Errorf("initialising logger: %w", logErr)
	}

	logger = config.GetLogger().With().Str("component", "cli").Logger()
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}
