package optimizer

import (
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
)

// Candidate is a partial plan the greedy build may continue with.
type Candidate struct {
	Plan plans.Plan
	// cost over Metrics
	Cost    cost_model.CostVector
	Metrics []cost_model.Metric
	// estimated bytes of the candidate's result
	ByteSize float64
}

// GreedyCriterion decides which candidate the greedy build takes next.
// Lower scores are preferred. Criteria hold no per-invocation state.
type GreedyCriterion interface {
	Name() string
	Score(c *Candidate) float64
}

// criteria which only work for some metric lists implement checker
type checker interface {
	Check(metrics []cost_model.Metric) error
}

// MinSizeCriterion prefers the smallest intermediate result.
type MinSizeCriterion struct{}

func (MinSizeCriterion) Name() string {
	return "size"
}

func (MinSizeCriterion) Score(c *Candidate) float64 {
	return c.ByteSize
}

// MinMetricCriterion prefers the lowest cost in one considered metric.
type MinMetricCriterion struct {
	Metric cost_model.Metric
}

func (m MinMetricCriterion) Name() string {
	return m.Metric.String()
}

func (m MinMetricCriterion) Check(metrics []cost_model.Metric) error {
	if !slices.Contains(metrics, m.Metric) {
		return common.NewConfigurationError("greedy criterion needs metric %s, considered are %v", m.Metric, metrics)
	}
	return nil
}

func (m MinMetricCriterion) Score(c *Candidate) float64 {
	return c.Cost[slices.Index(c.Metrics, m.Metric)]
}

// WeightedSumCriterion prefers the lowest weighted sum of the considered
// metrics. Without weights every metric counts once.
type WeightedSumCriterion struct {
	Weights []float64
}

func (w WeightedSumCriterion) Name() string {
	return "sum"
}

func (w WeightedSumCriterion) Check(metrics []cost_model.Metric) error {
	if len(w.Weights) != 0 && len(w.Weights) != len(metrics) {
		return common.NewConfigurationError("%d weights for %d metrics", len(w.Weights), len(metrics))
	}
	return nil
}

func (w WeightedSumCriterion) Score(c *Candidate) float64 {
	if len(w.Weights) == 0 {
		return c.Cost.Sum()
	}
	return floats.Dot(w.Weights, c.Cost)
}
