package plans

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	stack "github.com/golang-collections/collections/stack"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/spaolacci/murmur3"
	"github.com/xlab/treeprint"
)

func (p Plan) String() string {
	if p.IsEmpty() {
		return "<empty>"
	}
	var sb strings.Builder
	p.writeTo(&sb, p.root)
	return sb.String()
}

func (p Plan) writeTo(sb *strings.Builder, id NodeID) {
	n := p.arena.node(id)
	if !n.IsJoin() {
		sb.WriteString(p.arena.q.Relation(n.Rel).Name)
		return
	}
	sb.WriteString("(")
	p.writeTo(sb, n.Left)
	sb.WriteString(" " + n.opLabel() + " ")
	p.writeTo(sb, n.Right)
	sb.WriteString(")")
}

func (n *Node) opLabel() string {
	switch n.Type {
	case SeqJoinOp:
		return "⋈" + n.Algorithm.String()
	case ClusterJoinOp:
		mode := "bc"
		if n.Parallel {
			mode = "sh"
		}
		return fmt.Sprintf("⋈MR%d%s", n.Machines, mode)
	default:
		return "?"
	}
}

// Fingerprint hashes the plan structure (operators, variants and relations)
// independently of node ids, so equal plans from different arenas match.
func (p Plan) Fingerprint() uint64 {
	h := murmur3.New64()
	buf := make([]byte, 8)
	st := stack.New()
	st.Push(p.root)
	for st.Len() > 0 {
		id := st.Pop().(NodeID)
		n := p.arena.node(id)
		for _, v := range []int{int(n.Type), n.Rel, int(n.Algorithm), n.Machines, boolToInt(n.Parallel)} {
			binary.LittleEndian.PutUint64(buf, uint64(v))
			h.Write(buf)
		}
		if n.IsJoin() {
			// right first so the left operand is hashed first
			st.Push(n.Right)
			st.Push(n.Left)
		}
	}
	return h.Sum64()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Validate checks that the plan joins every relation of the query exactly
// once and that cached relation sets are consistent.
func (p Plan) Validate() error {
	if p.IsEmpty() {
		return common.NewInvariantViolation("empty plan")
	}
	q := p.arena.q
	seen := make([]int, q.NrRelations())
	st := stack.New()
	st.Push(p.root)
	for st.Len() > 0 {
		id := st.Pop().(NodeID)
		n := p.arena.node(id)
		if !n.IsJoin() {
			if n.Rel < 0 || n.Rel >= len(seen) {
				return common.NewInvariantViolation("scan of unknown relation %d", n.Rel)
			}
			seen[n.Rel]++
			continue
		}
		l := p.arena.node(n.Left)
		r := p.arena.node(n.Right)
		if l.rels.Intersects(r.rels) || l.rels.GetCardinality()+r.rels.GetCardinality() != n.rels.GetCardinality() {
			return common.NewInvariantViolation("join node %d has inconsistent relation set", id)
		}
		st.Push(n.Left)
		st.Push(n.Right)
	}
	for rel, cnt := range seen {
		if cnt != 1 {
			return common.NewInvariantViolation("relation %s occurs %d times in %s", q.Relation(rel).Name, cnt, p)
		}
	}
	return nil
}

// PrintPlanTree renders the plan as an indented tree with estimated result
// sizes, for debug logging and the benchmark CLI.
func PrintPlanTree(p Plan, byteSizePerTuple float64) string {
	if p.IsEmpty() {
		return "<empty>\n"
	}
	tree := treeprint.New()
	p.addBranch(tree, p.root, byteSizePerTuple)
	return tree.String()
}

func (p Plan) addBranch(tree treeprint.Tree, id NodeID, byteSizePerTuple float64) {
	n := p.arena.node(id)
	bytes := n.card * float64(n.NrRelations()) * byteSizePerTuple
	if !n.IsJoin() {
		tree.AddNode(fmt.Sprintf("Scan %s [%s]", p.arena.q.Relation(n.Rel).Name, units.HumanSize(bytes)))
		return
	}
	branch := tree.AddBranch(fmt.Sprintf("%s %s [%s]", n.Type, n.opLabel(), units.HumanSize(bytes)))
	p.addBranch(branch, n.Left, byteSizePerTuple)
	p.addBranch(branch, n.Right, byteSizePerTuple)
}
