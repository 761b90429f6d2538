package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/carboncounter/internal/factors"
)

func newVehicleCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Browse the emissions dataset and select the tracked vehicle",
	}
	cmd.AddCommand(
		newVehicleListCmd(root, "years", "List model years", cobra.NoArgs,
			func(t *factors.Table, _ []string) []string { return t.AvailableYears() }),
		newVehicleListCmd(root, "makes YEAR", "List makes for a model year", cobra.ExactArgs(1),
			func(t *factors.Table, args []string) []string { return t.AvailableMakes(args[0]) }),
		newVehicleListCmd(root, "models YEAR MAKE", "List models for a year and make", cobra.ExactArgs(2),
			func(t *factors.Table, args []string) []string { return t.AvailableModels(args[0], args[1]) }),
		newVehicleSetCmd(root),
		newVehicleShowCmd(root),
	)
	return cmd
}

func newVehicleListCmd(
	root *rootOptions,
	use, short string,
	args cobra.PositionalArgs,
	list func(*factors.Table, []string) []string,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _, err := factors.LoadFile(root.cfg.Dataset.Path, logger)
			if err != nil {
				return fmt.Errorf("loading dataset %s: %w", root.cfg.Dataset.Path, err)
			}
			values := list(table, args)
			if len(values) == 0 {
				return fmt.Errorf("no matches for %s", strings.Join(args, " "))
			}
			out := cmd.OutOrStdout()
			for _, v := range values {
				_, _ = fmt.Fprintln(out, v)
			}
			return nil
		},
	}
}

func newVehicleSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set YEAR MAKE MODEL",
		Short:   "Select the vehicle used for emissions estimates",
		Example: `  carboncounter vehicle set 2020 Toyota Corolla`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v := factors.VehicleProfile{Year: args[0], Make: args[1], Model: args[2]}

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

			factor, matched, err := eng.SetVehicle(ctx, v)
			if err != nil {
				return err
			}
			if !matched {
				cmd.PrintErrf("Warning: %s is not in the dataset; emissions will be zero\n", v)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Vehicle set to %s (%s)\n", v, factor)
			return nil
		},
	}
}

func newVehicleShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected vehicle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := openStore(root.cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), vehicleLabel(st.Vehicle()))
			return nil
		},
	}
}
