package query

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	pair "github.com/notEpsilon/go-pair"
)

// queries are limited to what fits into a uint64 relation mask
const MaxNrRelations = 64

type Relation struct {
	Name        string
	Cardinality float64
}

// Predicate is a binary join predicate. Rels holds the two relation indexes,
// the smaller one first.
type Predicate struct {
	Rels        pair.Pair[int, int]
	Selectivity float64
}

// Query is the join graph handed to the optimizer: base relations with their
// cardinality and the predicates connecting them.
type Query struct {
	relations  []Relation
	predicates []Predicate
	neighbors  []mapset.Set[int]
	nameToIdx  map[string]int
}

func NewQuery() *Query {
	return &Query{
		relations:  make([]Relation, 0),
		predicates: make([]Predicate, 0),
		neighbors:  make([]mapset.Set[int], 0),
		nameToIdx:  make(map[string]int),
	}
}

// AddRelation registers a relation and returns its index.
func (q *Query) AddRelation(name string, cardinality float64) (int, error) {
	if _, ok := q.nameToIdx[name]; ok {
		return -1, common.NewConfigurationError("relation %s added twice", name)
	}
	if cardinality < 1 {
		return -1, common.NewConfigurationError("relation %s has cardinality %v", name, cardinality)
	}
	if len(q.relations) >= MaxNrRelations {
		return -1, common.NewConfigurationError("queries are limited to %d relations", MaxNrRelations)
	}
	idx := len(q.relations)
	q.relations = append(q.relations, Relation{Name: name, Cardinality: cardinality})
	q.neighbors = append(q.neighbors, mapset.NewThreadUnsafeSet[int]())
	q.nameToIdx[name] = idx
	return idx, nil
}

func (q *Query) AddPredicate(left int, right int, selectivity float64) error {
	if left < 0 || left >= len(q.relations) || right < 0 || right >= len(q.relations) {
		return common.NewConfigurationError("predicate references unknown relation (%d, %d)", left, right)
	}
	if left == right {
		return common.NewConfigurationError("predicate connects relation %d with itself", left)
	}
	if selectivity <= 0 || selectivity > 1 {
		return common.NewConfigurationError("selectivity %v outside (0, 1]", selectivity)
	}
	if left > right {
		left, right = right, left
	}
	q.predicates = append(q.predicates, Predicate{
		Rels:        pair.Pair[int, int]{First: left, Second: right},
		Selectivity: selectivity,
	})
	q.neighbors[left].Add(right)
	q.neighbors[right].Add(left)
	return nil
}

func (q *Query) NrRelations() int {
	return len(q.relations)
}

func (q *Query) Relation(idx int) Relation {
	return q.relations[idx]
}

func (q *Query) Relations() []Relation {
	return q.relations
}

func (q *Query) Predicates() []Predicate {
	return q.predicates
}

func (q *Query) RelationIndex(name string) (int, bool) {
	idx, ok := q.nameToIdx[name]
	return idx, ok
}

// Neighbors returns the relations sharing a predicate with rel.
func (q *Query) Neighbors(rel int) mapset.Set[int] {
	return q.neighbors[rel].Clone()
}

// Connected tells whether at least one predicate links the two relation sets.
func (q *Query) Connected(leftRels []int, rightRels []int) bool {
	for _, l := range leftRels {
		for _, r := range rightRels {
			if q.neighbors[l].Contains(r) {
				return true
			}
		}
	}
	return false
}

// Selectivity is the product of the selectivities of all predicates linking
// the two relation sets. 1 means a cross product.
func (q *Query) Selectivity(leftRels []int, rightRels []int) float64 {
	left := mapset.NewThreadUnsafeSet[int](leftRels...)
	right := mapset.NewThreadUnsafeSet[int](rightRels...)
	sel := 1.0
	for _, p := range q.predicates {
		if (left.Contains(p.Rels.First) && right.Contains(p.Rels.Second)) ||
			(left.Contains(p.Rels.Second) && right.Contains(p.Rels.First)) {
			sel *= p.Selectivity
		}
	}
	return sel
}

func (q *Query) String() string {
	var sb strings.Builder
	names := make([]string, 0, len(q.relations))
	for _, r := range q.relations {
		names = append(names, r.Name)
	}
	sb.WriteString("Query[" + strings.Join(names, ","))
	for _, p := range q.predicates {
		sb.WriteString(fmt.Sprintf(" %s-%s", q.relations[p.Rels.First].Name, q.relations[p.Rels.Second].Name))
	}
	sb.WriteString("]")
	return sb.String()
}
