package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/carboncounter/internal/aggregate"
	"github.com/rshade/carboncounter/internal/backend"
	"github.com/rshade/carboncounter/internal/config"
	"github.com/rshade/carboncounter/internal/greenops"
	"github.com/rshade/carboncounter/internal/history"
)

func newReportCmd(root *rootOptions) *cobra.Command {
	var (
		withRank bool
		recent   int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show today's emissions, the rolling buffers and profile stats",
		Example: `  carboncounter report
  carboncounter report --rank
  carboncounter report --recent 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := newServices(ctx, root)
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.store.Load(ctx)
			if err != nil {
				return err
			}
			daily, weekly, err := st.Buffers()
			if err != nil {
				return err
			}
			agg := aggregate.New(aggregate.SameDayOverwrite)
			agg.Restore(daily, weekly)

			out := cmd.OutOrStdout()
			printProfile(out, st, agg)

			if withRank {
				if svc.client == nil {
					return errors.New("--rank needs the backend; drop --offline")
				}
				entries, rankErr := svc.client.WeeklyEmissions(ctx)
				if rankErr != nil {
					return rankErr
				}
				if pos := backend.Rank(entries, st.Username); pos > 0 {
					_, _ = fmt.Fprintf(out, "Leaderboard: #%d of %d\n", pos, len(entries))
				} else {
					_, _ = fmt.Fprintln(out, "Leaderboard: not ranked yet")
				}
			}

			if recent > 0 {
				if svc.history == nil {
					return errors.New("--recent needs history.postgres_url")
				}
				weekStart := aggregate.WeekStart(time.Now(), svc.cfg.Location())
				if histErr := printHistory(ctx, out, svc.history, recent, weekStart); histErr != nil {
					return histErr
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withRank, "rank", false, "include the weekly leaderboard position")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent drives from the history database")
	return cmd
}

// printHistory lists the n most recent drives and the grams logged since
// weekStart.
func printHistory(ctx context.Context, w io.Writer, hist *history.Log, n int, weekStart time.Time) error {
	drives, err := hist.Recent(ctx, n)
	if err != nil {
		return err
	}
	total, err := hist.TotalGramsSince(ctx, weekStart)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w, "\nRecent drives:")
	for _, d := range drives {
		_, _ = fmt.Fprintf(w, "  %s  %s mi  %s g  %s\n",
			d.EndedAt.Local().Format("2006-01-02 15:04"),
			greenops.FormatFloat(greenops.MilesFromMeters(d.DistanceMeters), 2),
			greenops.FormatNumber(int64(d.Grams)),
			d.Vehicle)
	}
	_, _ = fmt.Fprintf(w, "Logged since %s: %s g\n",
		weekStart.Format(aggregate.DateLayout), greenops.FormatNumber(int64(total)))
	return nil
}

func printProfile(w io.Writer, st config.PersistedState, agg *aggregate.Aggregator) {
	stats := agg.Stats()
	daily, weekly := agg.Snapshot()

	_, _ = fmt.Fprintf(w, "User:     %s\n", st.Username)
	_, _ = fmt.Fprintf(w, "Vehicle:  %s\n", vehicleLabel(st.Vehicle()))
	_, _ = fmt.Fprintf(w, "Today:    %s g\n", greenops.FormatNumber(int64(stats.Today)))
	_, _ = fmt.Fprintf(w, "Week:     %s g\n", greenops.FormatNumber(int64(stats.ThisWeek)))
	_, _ = fmt.Fprintf(w, "All time: %s g\n", greenops.FormatNumber(int64(stats.AllTime)))
	_, _ = fmt.Fprintf(w, "Daily average: %s g\n", greenops.FormatFloat(stats.DailyAverage, 1))
	if eq := greenops.EquivalencyText(float64(stats.AllTime)); eq != "" {
		_, _ = fmt.Fprintf(w, "%s.\n", eq)
	}
	_, _ = fmt.Fprintf(w, "Last 7 days: %v\n", daily)
	_, _ = fmt.Fprintf(w, "Last 5 weeks: %v\n", weekly)
}
