package pareto

import (
	"github.com/google/btree"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"golang.org/x/exp/slices"
)

const btreeDegree = 8

// Member is one plan of a ParetoPlanSet with its cost over the set's metrics.
type Member struct {
	Plan plans.Plan
	Cost cost_model.CostVector
	// insertion order, breaks ties in the member ordering
	seq uint64
}

func memberLess(a *Member, b *Member) bool {
	if a.Cost[0] != b.Cost[0] {
		return a.Cost[0] < b.Cost[0]
	}
	return a.seq < b.seq
}

// ParetoPlanSet keeps plans none of which is dominated by another. Members are
// ordered by their first metric, so only members on one side of a new cost
// vector have to be checked for each direction of dominance.
// A set is not safe for concurrent use and becomes read-only once frozen.
type ParetoPlanSet struct {
	metrics []cost_model.Metric
	dedup   bool
	frozen  bool
	members *btree.BTreeG[*Member]
	nextSeq uint64
}

// NewParetoPlanSet creates a set where members with equal cost vectors coexist.
func NewParetoPlanSet(metrics []cost_model.Metric) *ParetoPlanSet {
	return newSet(metrics, false)
}

// NewDedupParetoPlanSet creates a set which keeps only the first of several
// members with equal cost vectors.
func NewDedupParetoPlanSet(metrics []cost_model.Metric) *ParetoPlanSet {
	return newSet(metrics, true)
}

func newSet(metrics []cost_model.Metric, dedup bool) *ParetoPlanSet {
	common.SH_Assert(len(metrics) > 0, "pareto set without metrics")
	return &ParetoPlanSet{
		metrics: slices.Clone(metrics),
		dedup:   dedup,
		members: btree.NewG[*Member](btreeDegree, memberLess),
		nextSeq: 1,
	}
}

func (s *ParetoPlanSet) Metrics() []cost_model.Metric {
	return slices.Clone(s.metrics)
}

func (s *ParetoPlanSet) Len() int {
	return s.members.Len()
}

func (s *ParetoPlanSet) IsFrozen() bool {
	return s.frozen
}

// Freeze makes the set read-only. optimizers freeze the sets they return.
func (s *ParetoPlanSet) Freeze() *ParetoPlanSet {
	s.frozen = true
	return s
}

// Insert adds plan unless a member dominates cost, and removes every member
// cost dominates. It reports whether plan was added.
func (s *ParetoPlanSet) Insert(plan plans.Plan, cost cost_model.CostVector) (bool, error) {
	common.SH_Assert(!s.frozen, "insert into frozen pareto set")
	if len(cost) != len(s.metrics) {
		return false, common.NewConfigurationError("cost vector has %d entries, pareto set tracks %d metrics",
			len(cost), len(s.metrics))
	}

	// only members not worse in the first metric can dominate the new one
	rejected := false
	s.members.Ascend(func(m *Member) bool {
		if m.Cost[0] > cost[0] {
			return false
		}
		if m.Cost.Dominates(cost) || (s.dedup && m.Cost.Equal(cost)) {
			rejected = true
			return false
		}
		return true
	})
	if rejected {
		return false, nil
	}

	dominated := make([]*Member, 0)
	s.members.AscendGreaterOrEqual(&Member{Cost: cost_model.CostVector{cost[0]}}, func(m *Member) bool {
		if cost.Dominates(m.Cost) {
			dominated = append(dominated, m)
		}
		return true
	})
	for _, m := range dominated {
		s.members.Delete(m)
	}

	s.members.ReplaceOrInsert(&Member{Plan: plan, Cost: append(cost_model.CostVector(nil), cost...), seq: s.nextSeq})
	s.nextSeq++
	return true, nil
}

// Merge inserts every member of other. Both sets must track the same metrics.
func (s *ParetoPlanSet) Merge(other *ParetoPlanSet) error {
	if !slices.Equal(s.metrics, other.metrics) {
		return common.NewConfigurationError("cannot merge pareto sets over %v and %v", s.metrics, other.metrics)
	}
	for _, m := range other.Members() {
		if _, err := s.Insert(m.Plan, m.Cost); err != nil {
			return err
		}
	}
	return nil
}

// Members returns the members ordered by the first metric.
func (s *ParetoPlanSet) Members() []Member {
	ret := make([]Member, 0, s.members.Len())
	s.members.Ascend(func(m *Member) bool {
		ret = append(ret, *m)
		return true
	})
	return ret
}

func (s *ParetoPlanSet) Plans() []plans.Plan {
	ret := make([]plans.Plan, 0, s.members.Len())
	s.members.Ascend(func(m *Member) bool {
		ret = append(ret, m.Plan)
		return true
	})
	return ret
}

// CheckMinimality verifies that no member dominates another one.
func (s *ParetoPlanSet) CheckMinimality() error {
	members := s.Members()
	for i := range members {
		for j := range members {
			if i != j && members[i].Cost.Dominates(members[j].Cost) {
				return common.NewInvariantViolation("member %v dominates member %v", members[i].Cost, members[j].Cost)
			}
		}
	}
	return nil
}
