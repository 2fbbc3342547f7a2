package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/itrummer/query-optimizer-lib-sub001/benchmark"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/optimizer"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/plan_space"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
	"github.com/itrummer/query-optimizer-lib-sub001/statistics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type benchFlags struct {
	configPath string
	sizes      []int
	nrQueries  int
	graph      string
	seed       int64
	out        string
	optimizers []string
	metrics    []string
	workers    int
	verbose    bool
}

type explainFlags struct {
	configPath    string
	sql           string
	cardinalities map[string]string
	optimizer     string
	metrics       []string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &benchFlags{}
	root := &cobra.Command{
		Use:          "moqo-bench",
		Short:        "compares multi-objective query optimizers on generated queries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd.OutOrStdout(), flags)
		},
	}
	root.Flags().StringVar(&flags.configPath, "config", "", "TOML config file, defaults are used when empty")
	root.Flags().IntSliceVar(&flags.sizes, "sizes", []int{2, 4, 6}, "numbers of relations per query")
	root.Flags().IntVar(&flags.nrQueries, "queries", 10, "queries per size")
	root.Flags().StringVar(&flags.graph, "graph", "chain", "join graph: chain, star or cycle")
	root.Flags().Int64Var(&flags.seed, "seed", 0, "seed of the query generator")
	root.Flags().StringVar(&flags.out, "out", "", "file for the statistics as JSON lines")
	root.Flags().StringSliceVar(&flags.optimizers, "optimizers", []string{"greedy-size", "greedy-sum"}, "optimizers to compare")
	root.Flags().StringSliceVar(&flags.metrics, "metrics", []string{"time", "fees"}, "cost metrics to consider")
	root.Flags().IntVar(&flags.workers, "workers", 4, "invocations running at the same time")
	root.Flags().BoolVar(&flags.verbose, "verbose", false, "development logging")
	root.AddCommand(newExplainCommand())
	return root
}

func newExplainCommand() *cobra.Command {
	flags := &explainFlags{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "optimizes one SQL query and prints the plans found",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", "", "TOML config file, defaults are used when empty")
	cmd.Flags().StringVar(&flags.sql, "sql", "", "SELECT statement with equi-joins")
	cmd.Flags().StringToStringVar(&flags.cardinalities, "card", map[string]string{}, "table cardinalities, e.g. orders=1e6")
	cmd.Flags().StringVar(&flags.optimizer, "optimizer", "exhaustive", "optimizer to run")
	cmd.Flags().StringSliceVar(&flags.metrics, "metrics", []string{"time", "fees"}, "cost metrics to consider")
	return cmd
}

func loadConfig(path string) (*common.Config, error) {
	if path == "" {
		return common.DefaultConfig(), nil
	}
	return common.LoadConfig(path)
}

func parseMetrics(names []string) ([]cost_model.Metric, error) {
	ret := make([]cost_model.Metric, 0, len(names))
	for _, name := range names {
		m, err := cost_model.ParseMetric(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}
	return ret, nil
}

func setupLogger(verbose bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	common.SetLogger(l)
	return nil
}

func runBenchmark(w io.Writer, flags *benchFlags) error {
	if err := setupLogger(flags.verbose); err != nil {
		return err
	}
	defer common.Logger().Sync() //nolint:errcheck

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	metrics, err := parseMetrics(flags.metrics)
	if err != nil {
		return err
	}
	shape, err := benchmark.ParseGraphShape(flags.graph)
	if err != nil {
		return err
	}
	opts := make([]optimizer.Optimizer, 0, len(flags.optimizers))
	for _, name := range flags.optimizers {
		opt, err := optimizer.ByName(name)
		if err != nil {
			return err
		}
		opts = append(opts, opt)
	}

	h, err := benchmark.NewHarness(cfg, benchmark.Options{
		Optimizers: opts,
		Metrics:    metrics,
		Sizes:      flags.sizes,
		NrQueries:  flags.nrQueries,
		Shape:      shape,
		Seed:       flags.seed,
		Workers:    flags.workers,
	})
	if err != nil {
		return err
	}
	runErr := h.Run()

	printAggregates(w, h.Stats(), flags.optimizers, flags.sizes)
	if flags.out != "" {
		f, err := os.Create(flags.out)
		if err != nil {
			return errors.Wrapf(err, "create %s", flags.out)
		}
		defer f.Close()
		if err := h.Stats().DumpJSON(f); err != nil {
			return err
		}
	}
	return runErr
}

func printAggregates(w io.Writer, stats *statistics.Recorder, optimizers []string, sizes []int) {
	fmt.Fprintf(w, "%-16s %6s %7s %12s %8s\n", "optimizer", "size", "period", "epsilon", "queries")
	for _, agg := range stats.Aggregates(optimizer.EpsilonFeature) {
		eps := "inf"
		if !math.IsInf(agg.Mean, 1) {
			eps = strconv.FormatFloat(agg.Mean, 'g', 6, 64)
		}
		fmt.Fprintf(w, "%-16s %6d %7d %12s %8d\n",
			optimizers[agg.AlgIdx], sizes[agg.SizeIdx], agg.PeriodIdx, eps, agg.NrQueries)
	}
}

func runExplain(w io.Writer, flags *explainFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	metrics, err := parseMetrics(flags.metrics)
	if err != nil {
		return err
	}
	cards := make(map[string]float64, len(flags.cardinalities))
	for name, value := range flags.cardinalities {
		card, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return common.NewConfigurationError("cardinality of %s: %v", name, err)
		}
		cards[name] = card
	}
	q, err := query.FromSQL(flags.sql, cards)
	if err != nil {
		return err
	}
	opt, err := optimizer.ByName(flags.optimizer)
	if err != nil {
		return err
	}

	costs := cost_model.NewClusterCostModel(cfg)
	result, err := opt.ApproximateParetoSet(&optimizer.Invocation{
		Space:   plan_space.NewClusterPlanSpace(cfg, q),
		Costs:   costs,
		Metrics: metrics,
		Config:  cfg,
	})
	if err != nil {
		return err
	}

	tables := maps.Keys(cards)
	slices.Sort(tables)
	fmt.Fprintf(w, "%s over %v: %d plans\n", opt.Name(), tables, result.Len())
	for _, m := range result.Members() {
		fmt.Fprintf(w, "\n%v = %v\n", metrics, m.Cost)
		fmt.Fprint(w, plans.PrintPlanTree(m.Plan, cfg.ByteSizePerTuple))
	}
	return nil
}
