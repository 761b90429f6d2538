package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/engine/replay"
	"github.com/rshade/carboncounter/internal/factors"
	"github.com/rshade/carboncounter/internal/greenops"
	"github.com/rshade/carboncounter/internal/tracking"
)

type trackOptions struct {
	fixesPath string
	vehicle   factors.VehicleProfile
	batchSize int
}

func newTrackCmd(root *rootOptions) *cobra.Command {
	opts := &trackOptions{}

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Replay a recorded drive as one session",
		Long: `Replays a CSV of location fixes (timestamp_ms,lat,lon,speed,accuracy)
through the engine as a single driving session, records the emissions into
today's totals and prints the daily report.`,
		Example: `  carboncounter track --fixes drive.csv
  carboncounter track --fixes drive.csv --year 2020 --make Toyota --model Corolla`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrack(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.fixesPath, "fixes", "", "CSV file of fixes (\"-\" for stdin)")
	cmd.Flags().StringVar(&opts.vehicle.Year, "year", "", "vehicle model year")
	cmd.Flags().StringVar(&opts.vehicle.Make, "make", "", "vehicle make")
	cmd.Flags().StringVar(&opts.vehicle.Model, "model", "", "vehicle model")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", replay.DefaultBatchSize, "fixes submitted between engine barriers")
	_ = cmd.MarkFlagRequired("fixes")

	return cmd
}

func runTrack(cmd *cobra.Command, root *rootOptions, opts *trackOptions) error {
	ctx := cmd.Context()

	vehicleSet := opts.vehicle.Year != "" || opts.vehicle.Make != "" || opts.vehicle.Model != ""
	if vehicleSet && (opts.vehicle.Year == "" || opts.vehicle.Make == "" || opts.vehicle.Model == "") {
		return errors.New("--year, --make and --model must be given together")
	}

	replayer, err := replay.New(opts.batchSize)
	if err != nil {
		return err
	}
	fixes, err := readFixes(cmd.InOrStdin(), opts.fixesPath)
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, root)
	if err != nil {
		return err
	}
	defer svc.Close()
	if tableErr := svc.loadTable(); tableErr != nil {
		return tableErr
	}

	eng, err := svc.newEngine(ctx)
	if err != nil {
		return err
	}
	stop := runEngine(ctx, eng)
	defer stop()

	if vehicleSet {
		_, matched, setErr := eng.SetVehicle(ctx, opts.vehicle)
		if setErr != nil {
			return setErr
		}
		if !matched {
			cmd.PrintErrf("Warning: %s is not in the dataset; emissions will be zero\n", opts.vehicle)
		}
	}

	if _, err = eng.StartSession(ctx); err != nil {
		return err
	}
	progress, err := replayer.
		WithProgress(func(p replay.Progress) {
			logger.Debug().
				Int("batch", p.Batches).
				Int("of", p.TotalBatches).
				Float64("percent", p.PercentComplete()).
				Msg("replay progress")
		}).
		Replay(ctx, eng, fixes)
	if err != nil {
		return fmt.Errorf("replaying fixes: %w", err)
	}
	if progress.Dropped > 0 {
		cmd.PrintErrf("Warning: %d fixes were dropped\n", progress.Dropped)
	}

	summary, err := eng.EndSession(ctx)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

// readFixes parses the fixes CSV at path, or stdin when path is "-".
func readFixes(stdin io.Reader, path string) ([]tracking.Fix, error) {
	if path == "-" {
		return replay.ReadCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixes: %w", err)
	}
	defer f.Close()

	fixes, err := replay.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return fixes, nil
}

func printSummary(w io.Writer, s engine.Summary) {
	_, _ = fmt.Fprintf(w, "Session:  %s\n", s.SessionID)
	_, _ = fmt.Fprintf(w, "Vehicle:  %s (%s)\n", vehicleLabel(s.Vehicle), s.Factor)
	_, _ = fmt.Fprintf(w, "Distance: %s m (%s mi)\n",
		greenops.FormatFloat(s.DistanceMeters, 1),
		greenops.FormatFloat(greenops.MilesFromMeters(s.DistanceMeters), 2))
	_, _ = fmt.Fprintf(w, "Duration: %s s\n", greenops.FormatFloat(s.DurationSeconds, 0))
	_, _ = fmt.Fprintf(w, "Fixes:    %d\n", s.Fixes)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, greenops.DailyReport(s.TodayDistanceMeters, s.TodayGrams))
}

func vehicleLabel(v factors.VehicleProfile) string {
	if v.IsZero() {
		return "no vehicle selected"
	}
	return v.String()
}
