package query

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/opcode"
	_ "github.com/pingcap/parser/test_driver"
)

type tableRef struct {
	alias string
	table string
}

type columnEquality struct {
	leftAlias  string
	rightAlias string
}

// JoinGraphVisitor collects the table references of a SELECT statement and
// the column equalities usable as join predicates. Equalities under OR are ignored.
type JoinGraphVisitor struct {
	tables     []tableRef
	equalities []columnEquality
}

func (v *JoinGraphVisitor) Enter(in ast.Node) (ast.Node, bool) {
	switch node := in.(type) {
	case *ast.TableSource:
		if tn, ok := node.Source.(*ast.TableName); ok {
			alias := node.AsName.L
			if alias == "" {
				alias = tn.Name.L
			}
			v.tables = append(v.tables, tableRef{alias: alias, table: tn.Name.L})
		}
		return in, true
	case *ast.BinaryOperationExpr:
		switch node.Op {
		case opcode.LogicAnd:
			return in, false
		case opcode.EQ:
			l, lok := node.L.(*ast.ColumnNameExpr)
			r, rok := node.R.(*ast.ColumnNameExpr)
			if lok && rok && l.Name.Table.L != "" && r.Name.Table.L != "" {
				v.equalities = append(v.equalities, columnEquality{l.Name.Table.L, r.Name.Table.L})
			}
			return in, true
		default:
			return in, true
		}
	default:
	}
	return in, false
}

func (v *JoinGraphVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

// FromSQL builds the join graph of a SELECT statement. cardinalities is keyed
// by (lower case) table name; each equality between columns of two different
// tables becomes a predicate with selectivity 1/max(card_left, card_right).
func FromSQL(sql string, cardinalities map[string]float64) (*Query, error) {
	p := parser.New()
	stmtNodes, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, errors.Wrap(err, "parse query")
	}
	if len(stmtNodes) != 1 {
		return nil, common.NewConfigurationError("expected one statement, got %d", len(stmtNodes))
	}
	if _, ok := stmtNodes[0].(*ast.SelectStmt); !ok {
		return nil, common.NewConfigurationError("only SELECT statements can be optimized")
	}

	v := &JoinGraphVisitor{}
	stmtNodes[0].Accept(v)

	q := NewQuery()
	for _, ref := range v.tables {
		card, ok := cardinalities[ref.table]
		if !ok {
			return nil, common.NewConfigurationError("no cardinality for table %s", ref.table)
		}
		if _, err := q.AddRelation(ref.alias, card); err != nil {
			return nil, err
		}
	}
	for _, eq := range v.equalities {
		l, lok := q.RelationIndex(eq.leftAlias)
		r, rok := q.RelationIndex(eq.rightAlias)
		if !lok || !rok {
			return nil, common.NewConfigurationError("predicate references unknown table %s or %s", eq.leftAlias, eq.rightAlias)
		}
		if l == r {
			// local selection, not a join predicate
			continue
		}
		sel := 1 / math.Max(q.Relation(l).Cardinality, q.Relation(r).Cardinality)
		if err := q.AddPredicate(l, r, sel); err != nil {
			return nil, err
		}
	}
	return q, nil
}
