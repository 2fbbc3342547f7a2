package optimizer

import (
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/pareto"
	"go.uber.org/zap"
)

type GreedyState int

const (
	Started GreedyState = iota
	PlanBuilt
	LocallyOptimal
	Reported
)

func (s GreedyState) String() string {
	switch s {
	case Started:
		return "Started"
	case PlanBuilt:
		return "PlanBuilt"
	case LocallyOptimal:
		return "LocallyOptimal"
	case Reported:
		return "Reported"
	default:
		return "Unknown"
	}
}

// GreedyHeuristic builds one plan by repeatedly taking the join its criterion
// prefers, improves it by hill climbing and returns it as a one-element set.
type GreedyHeuristic struct {
	criterion GreedyCriterion
}

func NewGreedyHeuristic(criterion GreedyCriterion) *GreedyHeuristic {
	common.SH_Assert(criterion != nil, "greedy heuristic needs a criterion")
	return &GreedyHeuristic{criterion: criterion}
}

func (g *GreedyHeuristic) Name() string {
	return "greedy-" + g.criterion.Name()
}

// greedyRun is the state of one invocation
type greedyRun struct {
	g     *GreedyHeuristic
	inv   *Invocation
	state GreedyState
	// neighbours evaluated and moves taken while climbing
	nrEvaluated int
	nrMoves     int
}

func (r *greedyRun) transition(next GreedyState) {
	common.SH_Assert(next == r.state+1, "invalid greedy state transition")
	r.state = next
	common.Logger().Debug("greedy heuristic state",
		zap.String("optimizer", r.g.Name()),
		zap.Int("query", r.inv.QueryIdx),
		zap.Stringer("state", next))
}

func (g *GreedyHeuristic) ApproximateParetoSet(inv *Invocation) (*pareto.ParetoPlanSet, error) {
	start := nowFunc()
	if err := inv.validate(); err != nil {
		return nil, err
	}
	if c, ok := g.criterion.(checker); ok {
		if err := c.Check(inv.Metrics); err != nil {
			return nil, err
		}
	}
	run := &greedyRun{g: g, inv: inv, state: Started}

	built, err := run.build()
	if err != nil {
		return nil, err
	}
	run.transition(PlanBuilt)

	climbed, cost, err := run.climb(built)
	if err != nil {
		return nil, err
	}
	run.transition(LocallyOptimal)

	result := pareto.NewParetoPlanSet(inv.Metrics)
	if _, err := result.Insert(climbed, cost); err != nil {
		return nil, err
	}
	result.Freeze()
	if err := checkResult(inv, result); err != nil {
		return nil, err
	}
	if err := reportAnytime(inv, result, start); err != nil {
		return nil, err
	}
	run.transition(Reported)
	common.ShPrintf(common.OPTIMIZER_STEP, "%s: %s after %d moves, %d neighbours evaluated\n",
		g.Name(), climbed, run.nrMoves, run.nrEvaluated)
	return result, nil
}

func (r *greedyRun) candidate(p plans.Plan) (*Candidate, error) {
	cost, err := r.inv.Costs.Evaluate(p, r.inv.Metrics)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		Plan:     p,
		Cost:     cost,
		Metrics:  r.inv.Metrics,
		ByteSize: p.Cardinality() * float64(p.NrRelations()) * r.inv.Config.ByteSizePerTuple,
	}, nil
}

// best returns the candidate with the lowest score, the first one on ties.
func (r *greedyRun) best(options []plans.Plan) (*Candidate, error) {
	var ret *Candidate
	bestScore := 0.0
	for _, p := range options {
		c, err := r.candidate(p)
		if err != nil {
			return nil, err
		}
		if score := r.g.criterion.Score(c); ret == nil || score < bestScore {
			ret, bestScore = c, score
		}
	}
	return ret, nil
}

// build joins partial plans pairwise until one plan covers the query. pairs
// connected by a predicate are joined first, cross products only when no
// connected pair is left.
func (r *greedyRun) build() (plans.Plan, error) {
	space := r.inv.Space
	q := space.Query()

	partials := make([]plans.Plan, 0, q.NrRelations())
	for rel := 0; rel < q.NrRelations(); rel++ {
		scan, err := r.best(space.ScanPlans(rel))
		if err != nil {
			return plans.Plan{}, err
		}
		if scan == nil {
			return plans.Plan{}, common.NewEmptySearchSpaceError("no scan for relation %s", q.Relation(rel).Name)
		}
		partials = append(partials, scan.Plan)
	}

	for len(partials) > 1 {
		connectedOnly := false
		for i := range partials {
			for j := i + 1; j < len(partials); j++ {
				if q.Connected(partials[i].RelationIndexes(), partials[j].RelationIndexes()) {
					connectedOnly = true
				}
			}
		}

		var chosen *Candidate
		chosenScore := 0.0
		chosenI, chosenJ := -1, -1
		for i := range partials {
			for j := range partials {
				if i == j {
					continue
				}
				if connectedOnly && !q.Connected(partials[i].RelationIndexes(), partials[j].RelationIndexes()) {
					continue
				}
				c, err := r.best(space.JoinPlans(partials[i], partials[j]))
				if err != nil {
					return plans.Plan{}, err
				}
				if c == nil {
					continue
				}
				if score := r.g.criterion.Score(c); chosen == nil || score < chosenScore {
					chosen, chosenScore, chosenI, chosenJ = c, score, i, j
				}
			}
		}
		if chosen == nil {
			return plans.Plan{}, common.NewEmptySearchSpaceError("no join for %d partial plans", len(partials))
		}
		common.ShPrintf(common.DEBUG_INFO, "greedy join: %s score=%f\n", chosen.Plan, chosenScore)

		partials[chosenI] = chosen.Plan
		partials = append(partials[:chosenJ], partials[chosenJ+1:]...)
	}

	r.assertValid(partials[0])
	return partials[0], nil
}

// climb takes the first neighbour dominating the current plan on the
// considered metrics until no neighbour does. Dominance is strict, so no
// metric ever gets worse and the climb terminates.
func (r *greedyRun) climb(p plans.Plan) (plans.Plan, cost_model.CostVector, error) {
	cost, err := r.inv.Costs.Evaluate(p, r.inv.Metrics)
	if err != nil {
		return plans.Plan{}, nil, err
	}
	for {
		moved := false
		for _, neighbor := range r.inv.Space.Neighbors(p) {
			r.nrEvaluated++
			neighborCost, err := r.inv.Costs.Evaluate(neighbor, r.inv.Metrics)
			if err != nil {
				return plans.Plan{}, nil, err
			}
			if neighborCost.Dominates(cost) {
				r.assertValid(neighbor)
				p, cost = neighbor, neighborCost
				r.nrMoves++
				moved = true
				break
			}
		}
		if !moved {
			return p, cost, nil
		}
	}
}

// assertValid panics with a stack dump when safe mode is on and p is not a plan
// over every relation of the query exactly once.
func (r *greedyRun) assertValid(p plans.Plan) {
	if !r.inv.Config.SafeMode {
		return
	}
	if err := p.Validate(); err != nil {
		common.SafeAssert(r.inv.Config, false, err.Error())
	}
}
