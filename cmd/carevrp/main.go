package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"carevrp/internal/buildinfo"
	"carevrp/internal/config"
	"carevrp/internal/milp"
	"carevrp/internal/model"
	"carevrp/internal/opt"
	"carevrp/internal/vrp"
)

var (
	flagConfig    string
	flagFile      string
	flagBackend   string
	flagTimeLimit time.Duration
	flagJSON      bool
	flagOutput    string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carevrp",
		Short: "Solve skill-aware nurse routing instances as a MILP",
		Long: `carevrp assigns skilled agents to tasks and orders each agent's tour from
and back to the depot, minimizing total travel distance. Instances are JSON or
YAML documents; the file extension selects the format.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $CAREVRP_CONFIG)")
	root.PersistentFlags().StringVarP(&flagFile, "file", "f", "", "instance document (.json, .yaml)")

	root.AddCommand(solveCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(exportLPCmd())
	root.AddCommand(versionCmd())
	return root
}

// loadInstance reads the -f document.
func loadInstance() (*vrp.Instance, error) {
	if flagFile == "" {
		return nil, fmt.Errorf("an instance file is required (-f)")
	}
	f, err := os.Open(flagFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := model.DecodeInstance(f, model.IsYAML(flagFile))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", flagFile, err)
	}
	return doc.ToVRP(), nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	if flagBackend != "" {
		cfg.Solver.Backend = flagBackend
	}
	if flagTimeLimit > 0 {
		cfg.Solver.TimeLimit = flagTimeLimit
	}
	return cfg, cfg.Validate()
}

func solveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve an instance and print each agent's route",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			in, err := loadInstance()
			if err != nil {
				return err
			}
			solver, err := cfg.NewSolver()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			res, err := opt.NewEngine(solver, cfg.EngineConfig()).Solve(ctx, in)
			if err != nil {
				return err
			}
			if flagJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(model.FromResult(res))
			}
			printResult(cmd.OutOrStdout(), in, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagBackend, "backend", "", "solver backend: bnb or cbc")
	cmd.Flags().DurationVar(&flagTimeLimit, "time-limit", 0, "solver time limit (e.g. 30s)")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	return cmd
}

func printResult(w io.Writer, in *vrp.Instance, res opt.Result) {
	fmt.Fprintf(w, "status: %s", res.Status)
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	fmt.Fprintln(w)
	if len(res.Uncovered) > 0 {
		fmt.Fprintf(w, "skills with no qualified agent: %s\n", strings.Join(res.Uncovered, ", "))
	}
	ids := make([]int, 0, len(res.Routes))
	for id := range res.Routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		ar := res.Routes[id]
		name := ""
		if a, ok := in.Agent(id); ok && a.Name != "" {
			name = " " + a.Name
		}
		stops := make([]string, len(ar.Route))
		for i, n := range ar.Route {
			stops[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(w, "agent %d%s: %s  distance=%.3f\n", id, name, strings.Join(stops, " -> "), ar.TotalDistance)
	}
	if !res.Empty() {
		fmt.Fprintf(w, "total distance: %.3f\n", res.Distance())
	}
	st := res.Stats
	fmt.Fprintf(w, "model: %d variables, %d constraints, bigM=%g; %s nodes=%d in %s\n",
		st.Variables, st.Constraints, st.BigM, st.Backend, st.Nodes, st.SolveTime.Round(time.Millisecond))
	if st.Seed != "" {
		fmt.Fprintf(w, "seed: %s (used=%v) bound=%.3f\n", st.Seed, st.WarmStart, st.Bound)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check an instance document without solving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			in, err := loadInstance()
			if err != nil {
				return err
			}
			if err := in.Validate(cfg.EngineConfig().Limits); err != nil {
				return err
			}
			cat, err := vrp.NewCatalog(in)
			if err != nil {
				return err
			}
			if missing := vrp.UncoveredSkills(in, cat); len(missing) > 0 {
				return fmt.Errorf("skills with no qualified agent: %s", strings.Join(missing, ", "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tasks, %d agents, %d skills\n", len(in.Tasks), len(in.Agents), cat.Len())
			return nil
		},
	}
}

func exportLPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-lp",
		Short: "Write the routing model in CPLEX LP format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			in, err := loadInstance()
			if err != nil {
				return err
			}
			ecfg := cfg.EngineConfig()
			if err := in.Validate(ecfg.Limits); err != nil {
				return err
			}
			am, err := opt.BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), ecfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if flagOutput != "" && flagOutput != "-" {
				f, err := os.Create(flagOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := milp.WriteLP(w, am.Model); err != nil {
				return err
			}
			if flagOutput != "" && flagOutput != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s: %d variables, %d constraints\n", flagOutput, am.Model.NumVars(), am.Model.NumConstraints())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default stdout)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "carevrp %s", info["version"])
			if c := info["commit"]; c != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", c)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
