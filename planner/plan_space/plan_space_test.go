package plan_space

import (
	"testing"

	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
	testingpkg "github.com/itrummer/query-optimizer-lib-sub001/testing/testing_util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPlansCoverEveryVariant(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	space := NewClusterPlanSpace(cfg, testingpkg.MakeABCQuery())
	a, b := space.ScanPlans(0)[0], space.ScanPlans(1)[0]

	joins := space.JoinPlans(a, b)
	// 3 sequential algorithms, shuffle and broadcast for each of 3 degrees of parallelism
	require.Equal(t, 9, len(joins))
	assert.Equal(t, len(space.JoinVariants()), len(joins))
	seen := make(map[uint64]bool)
	for _, j := range joins {
		require.NoError(t, j.Validate())
		assert.Equal(t, []int{0, 1}, j.LeafOrder())
		seen[j.Fingerprint()] = true
	}
	assert.Equal(t, 9, len(seen))
}

func TestNeighborsOfLeftDeepPlan(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	space := NewClusterPlanSpace(cfg, testingpkg.MakeABCQuery())
	arena := space.Arena()
	p := arena.NewSeqJoin(plans.HashJoin,
		arena.NewSeqJoin(plans.HashJoin, arena.NewScan(0), arena.NewScan(1)),
		arena.NewScan(2))

	neighbors := space.Neighbors(p)
	// root: commute, 8 other variants, swap and rotate; inner join: commute and 8 other variants
	assert.Equal(t, 20, len(neighbors))

	strs := make(map[string]bool)
	for _, n := range neighbors {
		require.NoError(t, n.Validate())
		strs[n.String()] = true
	}
	assert.True(t, strs["(C ⋈HJ (A ⋈HJ B))"])
	assert.True(t, strs["((B ⋈HJ A) ⋈HJ C)"])
	assert.True(t, strs["((A ⋈HJ C) ⋈HJ B)"])
	assert.True(t, strs["(A ⋈HJ (B ⋈HJ C))"])
	assert.True(t, strs["((A ⋈HJ B) ⋈MR32bc C)"])
	// the plan itself is untouched
	assert.Equal(t, "((A ⋈HJ B) ⋈HJ C)", p.String())
}

func TestNeighborsOfRightNestedPlan(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	cfg.DegreesOfParallelism = []int{}
	space := NewClusterPlanSpace(cfg, testingpkg.MakeABCQuery())
	arena := space.Arena()
	p := arena.NewSeqJoin(plans.SortMergeJoin,
		arena.NewScan(0),
		arena.NewSeqJoin(plans.HashJoin, arena.NewScan(1), arena.NewScan(2)))

	strs := make(map[string]bool)
	for _, n := range space.Neighbors(p) {
		require.NoError(t, n.Validate())
		strs[n.String()] = true
	}
	// a ⋈ (b ⋈ x) -> b ⋈ (a ⋈ x)
	assert.True(t, strs["(B ⋈SMJ (A ⋈HJ C))"])
	assert.True(t, strs["(A ⋈BNL (B ⋈HJ C))"])
}

func TestEnumerateAll(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	space := NewClusterPlanSpace(cfg, testingpkg.MakeABCQuery())

	count := 0
	fingerprints := make(map[uint64]bool)
	space.EnumerateAll(func(p plans.Plan) bool {
		require.NoError(t, p.Validate())
		fingerprints[p.Fingerprint()] = true
		count++
		return true
	})
	// 12 ordered binary trees over 3 leaves, 9 variants for each of the 2 joins
	assert.Equal(t, 12*9*9, count)
	assert.Equal(t, count, len(fingerprints))

	visited := 0
	space.EnumerateAll(func(p plans.Plan) bool {
		visited++
		return visited < 5
	})
	assert.Equal(t, 5, visited)
}

func TestEnumerateAllEdgeCases(t *testing.T) {
	cfg := testingpkg.GetTestConfig(4)
	empty := NewClusterPlanSpace(cfg, query.NewQuery())
	empty.EnumerateAll(func(p plans.Plan) bool {
		t.Fatal("empty query has no plan")
		return true
	})

	single := NewClusterPlanSpace(cfg, testingpkg.MakeChainQuery(1, []float64{10}, 0.5))
	count := 0
	single.EnumerateAll(func(p plans.Plan) bool {
		assert.Equal(t, "R0", p.String())
		count++
		return true
	})
	assert.Equal(t, 1, count)

	large := NewClusterPlanSpace(cfg, testingpkg.MakeChainQuery(MaxEnumerateRelations+1, []float64{10}, 0.5))
	assert.Panics(t, func() { large.EnumerateAll(func(p plans.Plan) bool { return true }) })
}
