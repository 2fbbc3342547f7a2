package optimizer

import (
	"math"
	"testing"
	"time"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/pareto"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/plan_space"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
	"github.com/itrummer/query-optimizer-lib-sub001/statistics"
	testingpkg "github.com/itrummer/query-optimizer-lib-sub001/testing/testing_util"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var byteSizeOnly = []cost_model.Metric{cost_model.ByteSize}

func newInvocation(cfg *common.Config, q *query.Query, metrics []cost_model.Metric) *Invocation {
	return &Invocation{
		Space:   plan_space.NewClusterPlanSpace(cfg, q),
		Costs:   cost_model.NewClusterCostModel(cfg),
		Metrics: metrics,
		Config:  cfg,
	}
}

// stubClock makes nowFunc return the base time on its first call and
// base+elapsed on every later call.
func stubClock(elapsed time.Duration) *gostub.Stubs {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	return gostub.Stub(&nowFunc, func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(elapsed)
	})
}

func referenceFrontier(t *testing.T, cfg *common.Config, q *query.Query, metrics []cost_model.Metric) *pareto.ParetoPlanSet {
	ref, err := NewExhaustiveOptimizer().ApproximateParetoSet(newInvocation(cfg, q, metrics))
	require.NoError(t, err)
	return ref
}

func TestGreedyJoinsSmallestIntermediateFirst(t *testing.T) {
	cfg := testingpkg.GetTestConfig(1)
	q := testingpkg.MakeABCQuery()

	result, err := NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(newInvocation(cfg, q, byteSizeOnly))
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	assert.True(t, result.IsFrozen())

	p := result.Plans()[0]
	require.NoError(t, p.Validate())
	// B-C yields 100 tuples of two relations, A-B 1000
	assert.Equal(t, "(A ⋈HJ (B ⋈HJ C))", p.String())

	ref := referenceFrontier(t, cfg, q, byteSizeOnly)
	eps, err := pareto.EpsilonError(result, ref, byteSizeOnly)
	require.NoError(t, err)
	assert.Equal(t, 0.0, eps)
}

func TestGreedyPlanValidity(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	criteria := []GreedyCriterion{
		MinSizeCriterion{},
		MinMetricCriterion{Metric: cost_model.Time},
		MinMetricCriterion{Metric: cost_model.Fees},
		WeightedSumCriterion{},
		WeightedSumCriterion{Weights: []float64{1, 1000, 0, 0}},
	}
	queries := []*query.Query{
		testingpkg.MakeChainQuery(1, []float64{10}, 0.5),
		testingpkg.MakeChainQuery(5, []float64{1e6, 10, 1e3}, 0.001),
		testingpkg.MakeStarQuery(7, 1e7, 100),
	}
	for _, criterion := range criteria {
		for _, q := range queries {
			result, err := NewGreedyHeuristic(criterion).ApproximateParetoSet(newInvocation(cfg, q, cost_model.AllMetrics()))
			require.NoError(t, err)
			require.Equal(t, 1, result.Len())
			p := result.Plans()[0]
			require.NoError(t, p.Validate())
			assert.Equal(t, q.NrRelations(), p.NrRelations())
			assert.Equal(t, q.NrRelations(), len(p.LeafOrder()))
		}
	}
}

func TestGreedyCrossProduct(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	q := query.NewQuery()
	for _, name := range []string{"X", "Y", "Z"} {
		_, err := q.AddRelation(name, 100)
		require.NoError(t, err)
	}
	require.NoError(t, q.AddPredicate(1, 2, 0.01))

	metrics := []cost_model.Metric{cost_model.Time, cost_model.IO}
	result, err := NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(newInvocation(cfg, q, metrics))
	require.NoError(t, err)
	p := result.Plans()[0]
	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.NrRelations())
}

func TestHillClimbingNeverRegresses(t *testing.T) {
	cfg := testingpkg.GetTestConfig(3)
	metrics := []cost_model.Metric{cost_model.Time, cost_model.Fees, cost_model.IO}
	for _, q := range []*query.Query{
		testingpkg.MakeChainQuery(6, []float64{1e5, 10, 1e7, 100}, 0.01),
		testingpkg.MakeStarQuery(6, 1e8, 1000),
	} {
		inv := newInvocation(cfg, q, metrics)
		run := &greedyRun{g: NewGreedyHeuristic(MinSizeCriterion{}), inv: inv}
		built, err := run.build()
		require.NoError(t, err)
		builtCost, err := inv.Costs.Evaluate(built, metrics)
		require.NoError(t, err)

		climbed, climbedCost, err := run.climb(built)
		require.NoError(t, err)
		require.NoError(t, climbed.Validate())
		assert.True(t, climbedCost.WeaklyDominates(builtCost), "%v worse than %v", climbedCost, builtCost)
		if run.nrMoves > 0 {
			assert.True(t, climbedCost.Dominates(builtCost))
		}
		// local optimum: no neighbour dominates the result
		for _, n := range inv.Space.Neighbors(climbed) {
			cost, err := inv.Costs.Evaluate(n, metrics)
			require.NoError(t, err)
			assert.False(t, cost.Dominates(climbedCost))
		}
	}
}

func TestAnytimeReporting(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	cfg.TimeoutMillis = 1000
	cfg.NrPeriods = 10
	q := testingpkg.MakeChainQuery(4, []float64{1e4, 10, 1e5}, 0.01)
	metrics := []cost_model.Metric{cost_model.Time, cost_model.Fees}
	ref := referenceFrontier(t, cfg, q, metrics)

	cases := []struct {
		elapsed    time.Duration
		completion int
	}{
		{0, 0},
		{350 * time.Millisecond, 3},
		{999 * time.Millisecond, 9},
		{5 * time.Second, 10},
	}
	for _, c := range cases {
		stubs := stubClock(c.elapsed)
		rec := statistics.NewRecorder()
		inv := newInvocation(cfg, q, metrics)
		inv.Reference = ref
		inv.Stats = rec
		inv.AlgIdx, inv.SizeIdx, inv.QueryIdx = 1, 2, 3

		result, err := NewGreedyHeuristic(WeightedSumCriterion{}).ApproximateParetoSet(inv)
		stubs.Reset()
		require.NoError(t, err)

		eps, err := pareto.EpsilonError(result, ref, metrics)
		require.NoError(t, err)
		assert.False(t, math.IsInf(eps, 1))
		require.Equal(t, cfg.NrPeriods, rec.Len())
		for period := 0; period < cfg.NrPeriods; period++ {
			v, ok := rec.Get(statistics.Key{Feature: EpsilonFeature, AlgIdx: 1, SizeIdx: 2, PeriodIdx: period, QueryIdx: 3})
			require.True(t, ok)
			if period < c.completion {
				assert.True(t, math.IsInf(v, 1), "period %d elapsed %v", period, c.elapsed)
			} else {
				assert.Equal(t, eps, v, "period %d elapsed %v", period, c.elapsed)
			}
		}
	}
}

func TestNothingReportedWithoutReference(t *testing.T) {
	cfg := testingpkg.GetTestConfig(1)
	rec := statistics.NewRecorder()
	inv := newInvocation(cfg, testingpkg.MakeABCQuery(), byteSizeOnly)
	inv.Stats = rec
	_, err := NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(inv)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Len())
}

func TestCompletionPeriod(t *testing.T) {
	cfg := testingpkg.GetTestConfig(1)
	cfg.TimeoutMillis = 500
	cfg.NrPeriods = 5
	assert.Equal(t, 0, CompletionPeriod(0, cfg))
	assert.Equal(t, 0, CompletionPeriod(99.9, cfg))
	assert.Equal(t, 1, CompletionPeriod(100, cfg))
	assert.Equal(t, 4, CompletionPeriod(499, cfg))
	assert.Equal(t, 5, CompletionPeriod(500, cfg))
	assert.Equal(t, 5, CompletionPeriod(1e9, cfg))
	assert.Equal(t, 0, CompletionPeriod(-1, cfg))
}

func TestEmptySearchSpace(t *testing.T) {
	cfg := testingpkg.GetTestConfig(1)
	for _, opt := range []Optimizer{NewGreedyHeuristic(MinSizeCriterion{}), NewExhaustiveOptimizer()} {
		result, err := opt.ApproximateParetoSet(newInvocation(cfg, query.NewQuery(), byteSizeOnly))
		require.Error(t, err, opt.Name())
		assert.True(t, common.IsEmptySearchSpace(err), opt.Name())
		assert.Nil(t, result)
	}
}

func TestInvalidInvocations(t *testing.T) {
	cfg := testingpkg.GetTestConfig(1)
	q := testingpkg.MakeABCQuery()
	greedy := NewGreedyHeuristic(MinSizeCriterion{})

	// more metrics than enabled
	_, err := greedy.ApproximateParetoSet(newInvocation(cfg, q, []cost_model.Metric{cost_model.Time, cost_model.IO}))
	assert.True(t, common.IsConfigurationError(err))

	_, err = greedy.ApproximateParetoSet(&Invocation{Metrics: byteSizeOnly, Config: cfg})
	assert.True(t, common.IsConfigurationError(err))

	// criterion on a metric which is not considered
	_, err = NewGreedyHeuristic(MinMetricCriterion{Metric: cost_model.IO}).ApproximateParetoSet(newInvocation(cfg, q, byteSizeOnly))
	assert.True(t, common.IsConfigurationError(err))
	_, err = NewGreedyHeuristic(WeightedSumCriterion{Weights: []float64{1, 2}}).ApproximateParetoSet(newInvocation(cfg, q, byteSizeOnly))
	assert.True(t, common.IsConfigurationError(err))

	// reference over other metrics
	inv := newInvocation(cfg, q, byteSizeOnly)
	inv.Reference = pareto.NewParetoPlanSet([]cost_model.Metric{cost_model.Time})
	_, err = inv.Reference.Insert(plans.Plan{}, cost_model.CostVector{1})
	require.NoError(t, err)
	inv.Stats = statistics.NewRecorder()
	_, err = greedy.ApproximateParetoSet(inv)
	assert.True(t, common.IsConfigurationError(err))

	large := testingpkg.MakeChainQuery(MaxExhaustiveRelations+1, []float64{10}, 0.5)
	_, err = NewExhaustiveOptimizer().ApproximateParetoSet(newInvocation(cfg, large, byteSizeOnly))
	assert.True(t, common.IsConfigurationError(err))
}

func TestExhaustiveMatchesEnumeration(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	q := testingpkg.MakeABCQuery()
	metrics := []cost_model.Metric{cost_model.Time, cost_model.Fees}

	result, err := NewExhaustiveOptimizer().ApproximateParetoSet(newInvocation(cfg, q, metrics))
	require.NoError(t, err)
	require.NoError(t, result.CheckMinimality())

	space := plan_space.NewClusterPlanSpace(cfg, q)
	costs := cost_model.NewClusterCostModel(cfg)
	brute := pareto.NewDedupParetoPlanSet(metrics)
	space.EnumerateAll(func(p plans.Plan) bool {
		cost, err := costs.Evaluate(p, metrics)
		require.NoError(t, err)
		_, err = brute.Insert(p, cost)
		require.NoError(t, err)
		return true
	})

	forward, err := pareto.EpsilonError(result, brute, metrics)
	require.NoError(t, err)
	backward, err := pareto.EpsilonError(brute, result, metrics)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, forward, 1e-9)
	assert.InDelta(t, 0.0, backward, 1e-9)
}

func TestExhaustiveWarnsOverBudget(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	common.SetLogger(zap.New(core))
	defer common.SetLogger(nil)

	cfg := testingpkg.GetTestConfig(1)
	q := testingpkg.MakeChainQuery(4, []float64{100}, 0.1)
	ref := referenceFrontier(t, cfg, q, byteSizeOnly)

	stubs := stubClock(time.Hour)
	defer stubs.Reset()
	rec := statistics.NewRecorder()
	inv := newInvocation(cfg, q, byteSizeOnly)
	inv.Reference = ref
	inv.Stats = rec
	result, err := NewExhaustiveOptimizer().ApproximateParetoSet(inv)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Len())

	// runs to completion, warns once and reports every period as unfinished
	assert.Equal(t, 1, logs.FilterMessage("exhaustive optimization exceeds its budget").Len())
	for period := 0; period < cfg.NrPeriods; period++ {
		v, ok := rec.Get(statistics.Key{Feature: EpsilonFeature, PeriodIdx: period})
		require.True(t, ok)
		assert.True(t, math.IsInf(v, 1))
	}
}

func TestByName(t *testing.T) {
	for name, expected := range map[string]string{
		"exhaustive":  "exhaustive",
		"greedy-size": "greedy-size",
		"greedy-sum":  "greedy-sum",
		"greedy-time": "greedy-time",
		"greedy-IO":   "greedy-io",
	} {
		opt, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, opt.Name())
	}
	for _, name := range []string{"greedy-latency", "dp"} {
		_, err := ByName(name)
		assert.True(t, common.IsConfigurationError(err), name)
	}
}

func TestGreedyLongChainCostsStayFinite(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	// every connected part of the chain yields 1e7 tuples
	q := testingpkg.MakeChainQuery(45, []float64{1e7}, 1e-7)
	metrics := []cost_model.Metric{cost_model.Time, cost_model.Fees}

	result, err := NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(newInvocation(cfg, q, metrics))
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	m := result.Members()[0]
	assert.Equal(t, 45, m.Plan.NrRelations())
	assert.InEpsilon(t, 1e7, m.Plan.Cardinality(), 1e-9)
	for _, c := range m.Cost {
		assert.False(t, math.IsInf(c, 0) || math.IsNaN(c), "cost %v", m.Cost)
	}
}

// subPlanSpace offers the left operand of a join as its only neighbour.
type subPlanSpace struct {
	plan_space.PlanSpace
}

func (s subPlanSpace) Neighbors(p plans.Plan) []plans.Plan {
	if p.NrRelations() < 2 {
		return nil
	}
	return []plans.Plan{p.Left()}
}

func TestSafeModePanicsOnIncompleteNeighbor(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	q := testingpkg.MakeABCQuery()
	metrics := []cost_model.Metric{cost_model.Time, cost_model.IO}
	inv := newInvocation(cfg, q, metrics)
	inv.Space = subPlanSpace{inv.Space}

	assert.Panics(t, func() {
		_, _ = NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(inv)
	})
}

func TestAnytimeElapsedExcludesErrorComputation(t *testing.T) {
	cfg := testingpkg.GetTestConfig(2)
	cfg.TimeoutMillis = 1000
	cfg.NrPeriods = 10
	q := testingpkg.MakeABCQuery()
	metrics := []cost_model.Metric{cost_model.Time, cost_model.IO}
	ref := referenceFrontier(t, cfg, q, metrics)

	// the clock passes the budget while the error is computed
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	stubs := gostub.Stub(&nowFunc, func() time.Time { return now })
	defer stubs.Reset()
	stubs.Stub(&epsilonError, func(candidate *pareto.ParetoPlanSet, reference *pareto.ParetoPlanSet, considered []cost_model.Metric) (float64, error) {
		now = base.Add(time.Hour)
		return pareto.EpsilonError(candidate, reference, considered)
	})

	stats := statistics.NewRecorder()
	inv := newInvocation(cfg, q, metrics)
	inv.Reference = ref
	inv.Stats = stats
	_, err := NewGreedyHeuristic(MinSizeCriterion{}).ApproximateParetoSet(inv)
	require.NoError(t, err)

	for period := 0; period < cfg.NrPeriods; period++ {
		eps, ok := stats.Get(statistics.Key{Feature: EpsilonFeature, PeriodIdx: period})
		require.True(t, ok)
		assert.False(t, math.IsInf(eps, 1), "period %d", period)
	}
}
