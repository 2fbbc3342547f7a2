package benchmark

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
)

type GraphShape int

const (
	Chain GraphShape = iota
	Star
	Cycle
)

func (g GraphShape) String() string {
	switch g {
	case Chain:
		return "chain"
	case Star:
		return "star"
	case Cycle:
		return "cycle"
	default:
		return "unknown"
	}
}

func ParseGraphShape(name string) (GraphShape, error) {
	for _, g := range []GraphShape{Chain, Star, Cycle} {
		if g.String() == strings.ToLower(name) {
			return g, nil
		}
	}
	return -1, common.NewConfigurationError("unknown join graph %q", name)
}

const (
	minLogCardinality = 1
	maxLogCardinality = 7
)

// QueryGenerator produces random queries. The same seed yields the same
// sequence of queries.
type QueryGenerator struct {
	rng *rand.Rand
}

func NewQueryGenerator(seed int64) *QueryGenerator {
	return &QueryGenerator{rng: rand.New(rand.NewSource(seed))}
}

// cardinalities are log-uniform between 10 and 10^7
func (g *QueryGenerator) cardinality() float64 {
	return math.Round(math.Pow(10, minLogCardinality+g.rng.Float64()*(maxLogCardinality-minLogCardinality)))
}

// the selectivity of an equi-join on a key of the larger relation, scaled by a
// log-uniform factor between 0.1 and 10
func (g *QueryGenerator) selectivity(lCard float64, rCard float64) float64 {
	factor := math.Pow(10, g.rng.Float64()*2-1)
	return math.Min(1, factor/math.Max(lCard, rCard))
}

func (g *QueryGenerator) Generate(shape GraphShape, nrRelations int) (*query.Query, error) {
	if nrRelations < 1 || nrRelations > query.MaxNrRelations {
		return nil, common.NewConfigurationError("cannot generate a query over %d relations", nrRelations)
	}
	q := query.NewQuery()
	for i := 0; i < nrRelations; i++ {
		if _, err := q.AddRelation(fmt.Sprintf("T%d", i), g.cardinality()); err != nil {
			return nil, err
		}
	}
	connect := func(l int, r int) error {
		sel := g.selectivity(q.Relation(l).Cardinality, q.Relation(r).Cardinality)
		return q.AddPredicate(l, r, sel)
	}
	for i := 1; i < nrRelations; i++ {
		var err error
		switch shape {
		case Chain, Cycle:
			err = connect(i-1, i)
		case Star:
			err = connect(0, i)
		default:
			return nil, common.NewConfigurationError("unknown join graph %d", int(shape))
		}
		if err != nil {
			return nil, err
		}
	}
	if shape == Cycle && nrRelations > 2 {
		if err := connect(nrRelations-1, 0); err != nil {
			return nil, err
		}
	}
	return q, nil
}
