package plan_space

import (
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
)

// enumeration of complete plans is only offered for tiny queries
const MaxEnumerateRelations = 4

type PlanSpace interface {
	Query() *query.Query
	// Arena holds every plan the space produces
	Arena() *plans.Arena
	ScanPlans(rel int) []plans.Plan
	// JoinPlans returns one plan per join variant with left and right as operands
	// in that order. the operands must not overlap.
	JoinPlans(left plans.Plan, right plans.Plan) []plans.Plan
	// Neighbors returns the plans one local transformation away from p
	Neighbors(p plans.Plan) []plans.Plan
	// EnumerateAll calls visit for every complete plan until visit returns false
	EnumerateAll(visit func(p plans.Plan) bool)
}

// ClusterPlanSpace offers sequential hash, sort-merge and block nested loop
// joins plus a cluster join per configured degree of parallelism, either
// shuffling both operands or broadcasting the right one.
type ClusterPlanSpace struct {
	cfg      *common.Config
	q        *query.Query
	arena    *plans.Arena
	variants []plans.Node
}

func NewClusterPlanSpace(cfg *common.Config, q *query.Query) *ClusterPlanSpace {
	variants := []plans.Node{
		{Type: plans.SeqJoinOp, Algorithm: plans.HashJoin},
		{Type: plans.SeqJoinOp, Algorithm: plans.SortMergeJoin},
		{Type: plans.SeqJoinOp, Algorithm: plans.BlockNestedLoopJoin},
	}
	for _, dop := range cfg.DegreesOfParallelism {
		variants = append(variants,
			plans.Node{Type: plans.ClusterJoinOp, Machines: dop, Parallel: true},
			plans.Node{Type: plans.ClusterJoinOp, Machines: dop, Parallel: false})
	}
	return &ClusterPlanSpace{
		cfg:      cfg,
		q:        q,
		arena:    plans.NewArena(q),
		variants: variants,
	}
}

func (s *ClusterPlanSpace) Query() *query.Query {
	return s.q
}

func (s *ClusterPlanSpace) Arena() *plans.Arena {
	return s.arena
}

// JoinVariants returns the operator prototypes used for every join.
func (s *ClusterPlanSpace) JoinVariants() []plans.Node {
	return append([]plans.Node(nil), s.variants...)
}

func (s *ClusterPlanSpace) ScanPlans(rel int) []plans.Plan {
	return []plans.Plan{s.arena.NewScan(rel)}
}

func (s *ClusterPlanSpace) JoinPlans(left plans.Plan, right plans.Plan) []plans.Plan {
	ret := make([]plans.Plan, 0, len(s.variants))
	for _, proto := range s.variants {
		ret = append(ret, s.arena.NewJoinLike(proto, left, right))
	}
	return ret
}

func sameVariant(a *plans.Node, b *plans.Node) bool {
	return a.Type == b.Type && a.Algorithm == b.Algorithm && a.Machines == b.Machines && a.Parallel == b.Parallel
}

// Neighbors applies to every join node of p: commuting its operands, swapping
// a relation of a nested join with its sibling (left and right nesting),
// rotating a left nested join to the right, and switching to another variant.
func (s *ClusterPlanSpace) Neighbors(p plans.Plan) []plans.Plan {
	ret := make([]plans.Plan, 0)
	for _, id := range p.JoinNodes() {
		n := p.Node(id)
		sub := p.Sub(id)
		left, right := sub.Left(), sub.Right()

		// a ⋈ b -> b ⋈ a
		ret = append(ret, p.Replace(id, s.arena.NewJoinLike(n, right, left)))

		for i := range s.variants {
			if sameVariant(&s.variants[i], &n) {
				continue
			}
			ret = append(ret, p.Replace(id, s.arena.NewJoinLike(s.variants[i], left, right)))
		}

		if ln := left.RootNode(); ln.IsJoin() {
			x, a := left.Left(), left.Right()
			// (x ⋈ a) ⋈ b -> (x ⋈ b) ⋈ a
			swapped := s.arena.NewJoinLike(n, s.arena.NewJoinLike(ln, x, right), a)
			ret = append(ret, p.Replace(id, swapped))
			// (x ⋈ a) ⋈ b -> x ⋈ (a ⋈ b)
			rotated := s.arena.NewJoinLike(n, x, s.arena.NewJoinLike(ln, a, right))
			ret = append(ret, p.Replace(id, rotated))
		}
		if rn := right.RootNode(); rn.IsJoin() {
			b, x := right.Left(), right.Right()
			// a ⋈ (b ⋈ x) -> b ⋈ (a ⋈ x)
			swapped := s.arena.NewJoinLike(n, b, s.arena.NewJoinLike(rn, left, x))
			ret = append(ret, p.Replace(id, swapped))
		}
	}
	return ret
}

// EnumerateAll visits all bushy plans, cross products included, over every
// combination of join variants.
func (s *ClusterPlanSpace) EnumerateAll(visit func(p plans.Plan) bool) {
	nrRels := s.q.NrRelations()
	common.SH_Assert(nrRels <= MaxEnumerateRelations, "query too large for plan enumeration")
	if nrRels == 0 {
		return
	}
	full := uint64(1)<<nrRels - 1
	subPlans := make(map[uint64][]plans.Plan)
	for rel := 0; rel < nrRels; rel++ {
		subPlans[uint64(1)<<rel] = s.ScanPlans(rel)
	}
	for set := uint64(1); set <= full; set++ {
		if _, ok := subPlans[set]; ok {
			continue
		}
		for lset := (set - 1) & set; lset > 0; lset = (lset - 1) & set {
			for _, l := range subPlans[lset] {
				for _, r := range subPlans[set&^lset] {
					subPlans[set] = append(subPlans[set], s.JoinPlans(l, r)...)
				}
			}
		}
	}
	for _, p := range subPlans[full] {
		if !visit(p) {
			return
		}
	}
}
