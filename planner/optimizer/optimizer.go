package optimizer

import (
	"math"
	"strings"
	"time"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/pareto"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/plan_space"
	"github.com/itrummer/query-optimizer-lib-sub001/statistics"
	"go.uber.org/zap"
)

// feature under which optimizers report their approximation error per period
const EpsilonFeature = "epsilon"

// replaced in tests
var (
	nowFunc      = time.Now
	epsilonError = pareto.EpsilonError
)

type Optimizer interface {
	Name() string
	// ApproximateParetoSet returns a frozen set of plans for the query of
	// inv.Space. Failures are fatal to the invocation and never yield a partial set.
	ApproximateParetoSet(inv *Invocation) (*pareto.ParetoPlanSet, error)
}

// Invocation bundles everything one optimizer run works on. Space, Costs and
// the returned set belong to this invocation only.
type Invocation struct {
	Space   plan_space.PlanSpace
	Costs   cost_model.MultiCostModel
	Metrics []cost_model.Metric
	// optional. when set together with Stats, the anytime error is reported
	Reference *pareto.ParetoPlanSet
	Stats     statistics.Sink
	AlgIdx    int
	SizeIdx   int
	QueryIdx  int
	// budget, number of periods and safe mode
	Config *common.Config
}

func (inv *Invocation) validate() error {
	if inv.Space == nil || inv.Costs == nil || inv.Config == nil {
		return common.NewConfigurationError("invocation needs a plan space, a cost model and a config")
	}
	if err := cost_model.ValidateMetrics(inv.Metrics, inv.Config); err != nil {
		return err
	}
	if inv.Space.Query().NrRelations() == 0 {
		return common.NewEmptySearchSpaceError("query has no relations")
	}
	return nil
}

// CompletionPeriod maps the elapsed time of an invocation to the index of the
// period it completed in. Completion after the budget yields NrPeriods.
func CompletionPeriod(elapsedMillis float64, cfg *common.Config) int {
	p := int(math.Floor(elapsedMillis / cfg.PeriodMillis()))
	if p < 0 {
		return 0
	}
	if p > cfg.NrPeriods {
		return cfg.NrPeriods
	}
	return p
}

// reportAnytime records +Inf for the periods before completion and the error
// of result against the reference frontier for the remaining ones.
func reportAnytime(inv *Invocation, result *pareto.ParetoPlanSet, start time.Time) error {
	if inv.Reference == nil || inv.Stats == nil {
		return nil
	}
	elapsedMillis := float64(nowFunc().Sub(start)) / float64(time.Millisecond)
	eps, err := epsilonError(result, inv.Reference, inv.Metrics)
	if err != nil {
		return err
	}
	completion := CompletionPeriod(elapsedMillis, inv.Config)
	for period := 0; period < inv.Config.NrPeriods; period++ {
		value := eps
		if period < completion {
			value = math.Inf(1)
		}
		inv.Stats.Record(EpsilonFeature, inv.AlgIdx, inv.SizeIdx, period, inv.QueryIdx, value)
	}
	common.Logger().Debug("anytime error reported",
		zap.Int("alg", inv.AlgIdx),
		zap.Int("query", inv.QueryIdx),
		zap.Float64("elapsedMillis", elapsedMillis),
		zap.Int("completionPeriod", completion),
		zap.Float64("epsilon", eps))
	return nil
}

// checkResult runs the safe mode checks on a set about to be returned.
func checkResult(inv *Invocation, result *pareto.ParetoPlanSet) error {
	if !inv.Config.SafeMode {
		return nil
	}
	for _, p := range result.Plans() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return result.CheckMinimality()
}

// ByName creates the optimizers the benchmark command line refers to:
// "exhaustive", "greedy-size", "greedy-sum" and "greedy-<metric>".
func ByName(name string) (Optimizer, error) {
	switch {
	case name == "exhaustive":
		return NewExhaustiveOptimizer(), nil
	case name == "greedy-size":
		return NewGreedyHeuristic(MinSizeCriterion{}), nil
	case name == "greedy-sum":
		return NewGreedyHeuristic(WeightedSumCriterion{}), nil
	case strings.HasPrefix(name, "greedy-"):
		metric, err := cost_model.ParseMetric(strings.TrimPrefix(name, "greedy-"))
		if err != nil {
			return nil, err
		}
		return NewGreedyHeuristic(MinMetricCriterion{Metric: metric}), nil
	default:
		return nil, common.NewConfigurationError("unknown optimizer %q", name)
	}
}
