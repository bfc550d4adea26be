// Command irrigation manages plots, trees and irrigation recommendations in the
// configured relational store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"irrigation/internal/config"
	"irrigation/internal/core"
	"irrigation/pkg/domain"
)

var (
	exitFunc  = os.Exit
	lookupEnv = os.LookupEnv
)

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error (%s): %v\n", domain.Kind(err), err)
		return 1
	}
	return 0
}

type app struct {
	stdout       io.Writer
	stderr       io.Writer
	configPath   string
	trace        bool
	soilMoisture float64
	root         *cobra.Command
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "irrigation",
		Short:         "Plan irrigation for plots of trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (overrides IRRIGATION_CONFIG)")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "write one JSON trace line per operation to stderr")
	root.PersistentFlags().Float64Var(&a.soilMoisture, "soil-moisture", 0, "scale water needs by this soil moisture percentage")
	a.root = root

	root.AddCommand(
		a.schemaCmd(),
		a.plotCmd(),
		a.treesCmd(),
		a.measureCmd(),
		a.recomputeCmd(),
		a.seedCmd(),
	)
	return root
}

func (a *app) loadConfig() (config.Config, error) {
	return config.LoadFrom(func(key string) (string, bool) {
		if key == "IRRIGATION_CONFIG" && a.configPath != "" {
			return a.configPath, true
		}
		return lookupEnv(key)
	})
}

// withService bootstraps the runtime for one command and closes it afterwards.
func (a *app) withService(ctx context.Context, fn func(*core.Service) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	log, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	opts := core.RuntimeOptions{Logger: log}
	if a.trace {
		opts.TraceWriter = a.stderr
	}
	if a.root.PersistentFlags().Changed("soil-moisture") {
		if a.soilMoisture < 0 || a.soilMoisture > 100 {
			return &domain.ValidationError{Field: "soil_moisture", Value: a.soilMoisture, Message: "must be between 0 and 100"}
		}
		opts.Calculator = domain.SoilMoistureCalculator{MoisturePercent: a.soilMoisture}
	}
	rt, err := core.Bootstrap(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("closing database", zap.Error(err))
		}
	}()
	return fn(rt.Service)
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the tables in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			db, err := core.OpenDatabase(ctx, cfg.Database, true)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := core.ApplySchema(ctx, db, cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "schema applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func (a *app) plotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plot", Short: "Manage plots"}

	var (
		plot  domain.Plot
		trees []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a plot with its initial trees",
		Long: `Create a plot with its initial trees in one transaction.

Each --tree is age:base_requirement[:species], for example --tree 5:25 --tree 12:30:2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseTrees(trees)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				created, err := svc.CreatePlotWithTrees(cmd.Context(), nil, plot, parsed)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "created plot %d %q with %d trees\n", created.ID, created.Name, created.TreeCount)
				return nil
			})
		},
	}
	create.Flags().StringVar(&plot.Name, "name", "", "unique plot name")
	create.Flags().Float64Var(&plot.AreaSqm, "area", 0, "area in square metres")
	create.Flags().StringVar(&plot.ClimateZone, "zone", "", "climate zone")
	create.Flags().Int64Var(&plot.OwnerID, "owner", 0, "owner id")
	create.Flags().StringArrayVar(&trees, "tree", nil, "tree as age:base_requirement[:species]")

	del := &cobra.Command{
		Use:   "delete <plot-id>",
		Short: "Delete a plot with its trees, measurements and recommendations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("plot id", args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				if _, err := svc.DeletePlotCascade(cmd.Context(), nil, id); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted plot %d\n", id)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print an overview of all plots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				plots, err := svc.ListPlots(cmd.Context())
				if err != nil {
					return err
				}
				return writeOverview(a.stdout, plots)
			})
		},
	}

	zone := &cobra.Command{
		Use:   "zone <plot-id>=<zone>...",
		Short: "Set climate zones, one transaction per plot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zones := make(map[int64]string, len(args))
			for _, arg := range args {
				idText, name, ok := strings.Cut(arg, "=")
				if !ok {
					return &domain.ValidationError{Field: "zone", Value: arg, Message: "expected <plot-id>=<zone>"}
				}
				id, err := parseID("plot id", idText)
				if err != nil {
					return err
				}
				zones[id] = name
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				return a.writeReport(svc.UpdateClimateZones(cmd.Context(), zones))
			})
		},
	}

	cmd.AddCommand(create, del, list, zone)
	return cmd
}

func (a *app) treesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "trees", Short: "Manage trees"}
	var from, to int64
	transfer := &cobra.Command{
		Use:   "transfer <tree-id>...",
		Short: "Move trees between plots; all move or none do",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID("tree id", arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				if err := svc.TransferTrees(cmd.Context(), nil, from, to, ids); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "moved %d trees from plot %d to plot %d\n", len(ids), from, to)
				return nil
			})
		},
	}
	transfer.Flags().Int64Var(&from, "from", 0, "source plot id")
	transfer.Flags().Int64Var(&to, "to", 0, "destination plot id")
	_ = transfer.MarkFlagRequired("from")
	_ = transfer.MarkFlagRequired("to")
	cmd.AddCommand(transfer)
	return cmd
}

func (a *app) measureCmd() *cobra.Command {
	var m domain.Measurement
	cmd := &cobra.Command{
		Use:   "measure <plot-id>",
		Short: "Record a measurement and store the resulting recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("plot id", args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				rec, err := svc.RecordMeasurementAndRecompute(cmd.Context(), nil, id, m)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "plot %d needs %.2f litres\n", rec.PlotID, rec.WaterLiters)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&m.Temperature, "temperature", 0, "temperature in degrees Celsius")
	cmd.Flags().Float64Var(&m.Precipitation, "precipitation", 0, "precipitation in millimetres")
	return cmd
}

func (a *app) recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute recommendations for every plot in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				report, err := svc.RecomputeAll(cmd.Context())
				if err != nil {
					return err
				}
				return a.writeReport(report)
			})
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create a sample plot with three trees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				p, err := svc.CreateSamplePlot(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "created plot %d %q with %d trees\n", p.ID, p.Name, p.TreeCount)
				return nil
			})
		},
	}
}

func (a *app) writeReport(report core.BatchReport) error {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLOT\tSTATUS\tLITRES\tERROR")
	for _, id := range report.PlotIDs() {
		item := report.Items[id]
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\n", id, item.Status, item.WaterLiters, item.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s: %d succeeded, %d failed\n", report.Kind, report.Succeeded(), report.Failed())
	return nil
}

func writeOverview(out io.Writer, plots []domain.Plot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTREES\tAREA\tZONE\tOWNER")
	for _, p := range plots {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%s\t%d\n", p.ID, p.Name, p.TreeCount, p.AreaSqm, p.ClimateZone, p.OwnerID)
	}
	return w.Flush()
}

func parseTrees(values []string) ([]domain.Tree, error) {
	trees := make([]domain.Tree, 0, len(values))
	for i, value := range values {
		parts := strings.Split(value, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("trees[%d]", i), Value: value, Message: "expected age:base_requirement[:species]"}
		}
		age, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("trees[%d].age_years", i), Value: parts[0], Message: "not an integer"}
		}
		base, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("trees[%d].base_requirement", i), Value: parts[1], Message: "not a number"}
		}
		t := domain.Tree{AgeYears: age, BaseRequirement: base}
		if len(parts) == 3 {
			species, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return nil, &domain.ValidationError{Field: fmt.Sprintf("trees[%d].species_id", i), Value: parts[2], Message: "not an integer"}
			}
			t.SpeciesID = species
		}
		trees = append(trees, t)
	}
	return trees, nil
}

func parseID(field, text string) (int64, error) {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: field, Value: text, Message: "must be a positive integer"}
	}
	return id, nil
}
