package optimizer

import (
	"math/bits"
	"time"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/pareto"
	"go.uber.org/zap"
)

// the number of relation subsets grows as 2^n
const MaxExhaustiveRelations = 16

// ExhaustiveOptimizer is Selinger style dynamic programming over relation
// subsets which keeps a Pareto set instead of a single best plan per subset.
// Cumulative costs only depend on the relations below a join, so combining
// the sets of two disjoint subsets never loses a Pareto optimal plan.
type ExhaustiveOptimizer struct{}

func NewExhaustiveOptimizer() *ExhaustiveOptimizer {
	return &ExhaustiveOptimizer{}
}

func (e *ExhaustiveOptimizer) Name() string {
	return "exhaustive"
}

func (e *ExhaustiveOptimizer) ApproximateParetoSet(inv *Invocation) (*pareto.ParetoPlanSet, error) {
	start := nowFunc()
	if err := inv.validate(); err != nil {
		return nil, err
	}
	space := inv.Space
	nrRels := space.Query().NrRelations()
	if nrRels > MaxExhaustiveRelations {
		return nil, common.NewConfigurationError("exhaustive optimization of %d relations, at most %d supported",
			nrRels, MaxExhaustiveRelations)
	}

	// subsets grouped by their number of relations
	full := uint64(1)<<nrRels - 1
	levels := make([][]uint64, nrRels+1)
	for set := uint64(1); set <= full; set++ {
		size := bits.OnesCount64(set)
		levels[size] = append(levels[size], set)
	}

	best := make(map[uint64]*pareto.ParetoPlanSet, full)
	for rel := 0; rel < nrRels; rel++ {
		set := pareto.NewDedupParetoPlanSet(inv.Metrics)
		for _, scan := range space.ScanPlans(rel) {
			cost, err := inv.Costs.Evaluate(scan, inv.Metrics)
			if err != nil {
				return nil, err
			}
			if _, err := set.Insert(scan, cost); err != nil {
				return nil, err
			}
		}
		best[uint64(1)<<rel] = set
	}

	warned := false
	for size := 2; size <= nrRels; size++ {
		if !warned && nowFunc().Sub(start) > time.Duration(inv.Config.TimeoutMillis)*time.Millisecond {
			common.Logger().Warn("exhaustive optimization exceeds its budget",
				zap.Int("query", inv.QueryIdx),
				zap.Int("nrRelations", nrRels),
				zap.Int("level", size),
				zap.Int64("timeoutMillis", inv.Config.TimeoutMillis))
			warned = true
		}
		for _, set := range levels[size] {
			frontier := pareto.NewDedupParetoPlanSet(inv.Metrics)
			for lset := (set - 1) & set; lset > 0; lset = (lset - 1) & set {
				for _, l := range best[lset].Plans() {
					for _, r := range best[set&^lset].Plans() {
						for _, p := range space.JoinPlans(l, r) {
							cost, err := inv.Costs.Evaluate(p, inv.Metrics)
							if err != nil {
								return nil, err
							}
							if _, err := frontier.Insert(p, cost); err != nil {
								return nil, err
							}
						}
					}
				}
			}
			if frontier.Len() == 0 {
				return nil, common.NewEmptySearchSpaceError("no plan for relation subset %b", set)
			}
			best[set] = frontier
		}
		common.ShPrintf(common.OPTIMIZER_STEP, "exhaustive: level %d done, %d subsets\n", size, len(levels[size]))
	}

	result := best[full].Freeze()
	if err := checkResult(inv, result); err != nil {
		return nil, err
	}
	if err := reportAnytime(inv, result, start); err != nil {
		return nil, err
	}
	return result, nil
}
