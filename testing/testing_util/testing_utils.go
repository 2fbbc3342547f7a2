package testing_util

import (
	"fmt"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
)

// MakeABCQuery returns the three relation chain A-B-C used across tests.
// A has 1000 tuples, B 100 and C 10; A-B has selectivity 0.01, B-C 0.1.
func MakeABCQuery() *query.Query {
	q := query.NewQuery()
	a := mustAdd(q, "A", 1000)
	b := mustAdd(q, "B", 100)
	c := mustAdd(q, "C", 10)
	mustConnect(q, a, b, 0.01)
	mustConnect(q, b, c, 0.1)
	return q
}

// MakeChainQuery builds R0-R1-...-R(n-1) with cardinalities taken from cards
// (cycled) and selectivity sel on every edge.
func MakeChainQuery(n int, cards []float64, sel float64) *query.Query {
	q := query.NewQuery()
	for i := 0; i < n; i++ {
		mustAdd(q, fmt.Sprintf("R%d", i), cards[i%len(cards)])
		if i > 0 {
			mustConnect(q, i-1, i, sel)
		}
	}
	return q
}

// MakeStarQuery builds a fact table F joined with n-1 dimension tables.
func MakeStarQuery(n int, factCard float64, dimCard float64) *query.Query {
	q := query.NewQuery()
	f := mustAdd(q, "F", factCard)
	for i := 1; i < n; i++ {
		d := mustAdd(q, fmt.Sprintf("D%d", i), dimCard)
		mustConnect(q, f, d, 1/dimCard)
	}
	return q
}

// GetTestConfig returns the default config with safe mode on.
func GetTestConfig(nrMetrics int) *common.Config {
	cfg := common.DefaultConfig()
	cfg.NrMetrics = nrMetrics
	cfg.SafeMode = true
	return cfg
}

func mustAdd(q *query.Query, name string, card float64) int {
	idx, err := q.AddRelation(name, card)
	if err != nil {
		panic(err)
	}
	return idx
}

func mustConnect(q *query.Query, l int, r int, sel float64) {
	if err := q.AddPredicate(l, r, sel); err != nil {
		panic(err)
	}
}
