package pareto

import (
	"math"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"golang.org/x/exp/slices"
)

// EpsilonError returns the smallest eps >= 0 such that each member of
// reference, with every considered metric scaled by (1+eps), is weakly
// dominated by some member of candidate. An empty reference yields 0 and an
// empty candidate +Inf.
func EpsilonError(candidate *ParetoPlanSet, reference *ParetoPlanSet, considered []cost_model.Metric) (float64, error) {
	if reference == nil || reference.Len() == 0 {
		return 0, nil
	}
	if len(considered) == 0 {
		return 0, common.NewConfigurationError("epsilon error without considered metrics")
	}
	refPos, err := positions(reference, considered)
	if err != nil {
		return 0, err
	}
	if candidate == nil || candidate.Len() == 0 {
		return math.Inf(1), nil
	}
	candPos, err := positions(candidate, considered)
	if err != nil {
		return 0, err
	}

	candidates := candidate.Members()
	eps := 0.0
	for _, ref := range reference.Members() {
		r := ref.Cost.Project(refPos)
		best := math.Inf(1)
		for _, cand := range candidates {
			best = math.Min(best, EpsilonNeeded(cand.Cost.Project(candPos), r))
		}
		eps = math.Max(eps, best)
	}
	return eps, nil
}

// EpsilonNeeded is the smallest eps >= 0 such that c is no worse than r scaled
// by (1+eps) in every entry. A positive entry of c against a zero entry of r
// can never be covered.
func EpsilonNeeded(c cost_model.CostVector, r cost_model.CostVector) float64 {
	common.SH_Assert(len(c) == len(r), "cost vectors of different length")
	needed := 0.0
	for i := range c {
		switch {
		case c[i] <= r[i]:
			continue
		case r[i] <= 0:
			return math.Inf(1)
		default:
			needed = math.Max(needed, c[i]/r[i]-1)
		}
	}
	return needed
}

func positions(s *ParetoPlanSet, considered []cost_model.Metric) ([]int, error) {
	ret := make([]int, len(considered))
	for i, m := range considered {
		pos := slices.Index(s.metrics, m)
		if pos < 0 {
			return nil, common.NewConfigurationError("metric %s is not tracked by pareto set over %v", m, s.metrics)
		}
		ret[i] = pos
	}
	return ret, nil
}
