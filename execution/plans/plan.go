package plans

import (
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
)

type OperatorType int

const (
	// base access of one relation
	ScanOp OperatorType = iota
	// join executed on a single machine
	SeqJoinOp
	// join executed as a distributed sort-merge job on a cluster
	ClusterJoinOp
)

func (t OperatorType) String() string {
	switch t {
	case ScanOp:
		return "Scan"
	case SeqJoinOp:
		return "SeqJoin"
	case ClusterJoinOp:
		return "ClusterJoin"
	default:
		return "Unknown"
	}
}

type JoinAlgorithm int

const (
	NoJoin JoinAlgorithm = iota
	HashJoin
	SortMergeJoin
	BlockNestedLoopJoin
)

func (a JoinAlgorithm) String() string {
	switch a {
	case HashJoin:
		return "HJ"
	case SortMergeJoin:
		return "SMJ"
	case BlockNestedLoopJoin:
		return "BNL"
	default:
		return "-"
	}
}

type NodeID int32

const InvalidNodeID NodeID = -1

// Node is one operator. Fields which do not belong to the node's Type keep
// their zero value. Nodes never change once they are in an Arena.
type Node struct {
	Type OperatorType
	// ScanOp
	Rel int
	// SeqJoinOp
	Algorithm JoinAlgorithm
	// ClusterJoinOp: number of machines and whether both inputs are repartitioned
	// over them (false: the right input is broadcast to every machine)
	Machines int
	Parallel bool

	Left  NodeID
	Right NodeID

	rels *roaring.Bitmap
	card float64
}

func (n *Node) IsJoin() bool {
	return n.Type != ScanOp
}

// Relations covered by the subtree rooted at this node. must not be modified.
func (n *Node) Relations() *roaring.Bitmap {
	return n.rels
}

func (n *Node) NrRelations() int {
	return int(n.rels.GetCardinality())
}

// Cardinality is the estimated number of result tuples of the subtree.
func (n *Node) Cardinality() float64 {
	return n.card
}

// Arena owns the nodes of all plans built for one query during one optimizer
// invocation. Plans address nodes by index, so a transformed plan shares every
// untouched subtree with its origin. Arena is not safe for concurrent use.
type Arena struct {
	q     *query.Query
	nodes []Node
}

func NewArena(q *query.Query) *Arena {
	return &Arena{q: q, nodes: make([]Node, 0, 64)}
}

func (a *Arena) Query() *query.Query {
	return a.q
}

func (a *Arena) Size() int {
	return len(a.nodes)
}

func (a *Arena) node(id NodeID) *Node {
	common.SH_Assert(id >= 0 && int(id) < len(a.nodes), "node id out of range")
	return &a.nodes[id]
}

func (a *Arena) add(n Node) NodeID {
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

func (a *Arena) NewScan(rel int) Plan {
	common.SH_Assert(rel >= 0 && rel < a.q.NrRelations(), "scan of unknown relation")
	id := a.add(Node{
		Type:  ScanOp,
		Rel:   rel,
		Left:  InvalidNodeID,
		Right: InvalidNodeID,
		rels:  roaring.BitmapOf(uint32(rel)),
		card:  a.q.Relation(rel).Cardinality,
	})
	return Plan{arena: a, root: id}
}

func (a *Arena) NewSeqJoin(algorithm JoinAlgorithm, left Plan, right Plan) Plan {
	common.SH_Assert(algorithm != NoJoin, "sequential join needs an algorithm")
	return a.newJoin(Node{Type: SeqJoinOp, Algorithm: algorithm}, left, right)
}

func (a *Arena) NewClusterJoin(machines int, parallel bool, left Plan, right Plan) Plan {
	common.SH_Assert(machines > 0, "cluster join needs at least one machine")
	return a.newJoin(Node{Type: ClusterJoinOp, Machines: machines, Parallel: parallel}, left, right)
}

// NewJoinLike creates a join with the operator fields of proto on top of the
// given operands.
func (a *Arena) NewJoinLike(proto Node, left Plan, right Plan) Plan {
	common.SH_Assert(proto.IsJoin(), "prototype is not a join")
	return a.newJoin(proto, left, right)
}

func (a *Arena) newJoin(proto Node, left Plan, right Plan) Plan {
	common.SH_Assert(left.arena == a && right.arena == a, "operands belong to another arena")
	common.SH_Assert(!left.Overlaps(right), "join operands overlap")
	id := a.joinNode(proto, left.root, right.root)
	return Plan{arena: a, root: id}
}

func (a *Arena) joinNode(proto Node, left NodeID, right NodeID) NodeID {
	l := a.node(left)
	r := a.node(right)
	rels := roaring.Or(l.rels, r.rels)
	proto.Left = left
	proto.Right = right
	proto.Rel = 0
	proto.rels = rels
	proto.card = a.cardinality(rels)
	return a.add(proto)
}

// cardinality of the join result over rels. it only depends on the relation
// set, so every join order of the same relations agrees. the product is summed
// in log space: multiplying all relation cardinalities before the
// selectivities apply overflows float64 for a few dozen relations.
func (a *Arena) cardinality(rels *roaring.Bitmap) float64 {
	logCard := 0.0
	it := rels.Iterator()
	for it.HasNext() {
		logCard += math.Log(a.q.Relation(int(it.Next())).Cardinality)
	}
	for _, p := range a.q.Predicates() {
		if rels.Contains(uint32(p.Rels.First)) && rels.Contains(uint32(p.Rels.Second)) {
			logCard += math.Log(p.Selectivity)
		}
	}
	return math.Exp(logCard)
}

// Plan is an immutable operator tree. The zero value is the empty plan.
type Plan struct {
	arena *Arena
	root  NodeID
}

func (p Plan) IsEmpty() bool {
	return p.arena == nil
}

func (p Plan) Arena() *Arena {
	return p.arena
}

func (p Plan) Root() NodeID {
	return p.root
}

// Node returns a copy of the node with the given id.
func (p Plan) Node(id NodeID) Node {
	return *p.arena.node(id)
}

func (p Plan) RootNode() Node {
	return p.Node(p.root)
}

func (p Plan) Sub(id NodeID) Plan {
	return Plan{arena: p.arena, root: id}
}

func (p Plan) Left() Plan {
	n := p.arena.node(p.root)
	common.SH_Assert(n.IsJoin(), "scan has no operands")
	return p.Sub(n.Left)
}

func (p Plan) Right() Plan {
	n := p.arena.node(p.root)
	common.SH_Assert(n.IsJoin(), "scan has no operands")
	return p.Sub(n.Right)
}

func (p Plan) Cardinality() float64 {
	return p.arena.node(p.root).card
}

func (p Plan) NrRelations() int {
	return p.arena.node(p.root).NrRelations()
}

// RelationIndexes returns the covered relations in ascending order.
func (p Plan) RelationIndexes() []int {
	arr := p.arena.node(p.root).rels.ToArray()
	ret := make([]int, len(arr))
	for i, r := range arr {
		ret[i] = int(r)
	}
	return ret
}

func (p Plan) Covers(other Plan) bool {
	mine := p.arena.node(p.root).rels
	theirs := other.arena.node(other.root).rels
	return roaring.AndNot(theirs, mine).IsEmpty()
}

func (p Plan) Overlaps(other Plan) bool {
	return p.arena.node(p.root).rels.Intersects(other.arena.node(other.root).rels)
}

// Replace returns a plan where the subtree rooted at target is substituted by
// replacement, which must cover the same relations. Only the nodes on the path
// from the root to target are copied.
func (p Plan) Replace(target NodeID, replacement Plan) Plan {
	common.SH_Assert(replacement.arena == p.arena, "replacement belongs to another arena")
	common.SH_Assert(p.arena.node(target).rels.Equals(p.arena.node(replacement.root).rels),
		"replacement covers other relations")
	path := p.pathTo(target)
	common.SH_Assert(len(path) > 0, "target is not part of the plan")

	newID := replacement.root
	for i := len(path) - 2; i >= 0; i-- {
		ancestor := *p.arena.node(path[i])
		left, right := ancestor.Left, ancestor.Right
		if left == path[i+1] {
			left = newID
		} else {
			right = newID
		}
		newID = p.arena.joinNode(ancestor, left, right)
	}
	return Plan{arena: p.arena, root: newID}
}

// pathTo lists the node ids from the root down to target (inclusive).
func (p Plan) pathTo(target NodeID) []NodeID {
	var walk func(id NodeID) []NodeID
	walk = func(id NodeID) []NodeID {
		if id == target {
			return []NodeID{id}
		}
		n := p.arena.node(id)
		if !n.IsJoin() {
			return nil
		}
		for _, child := range []NodeID{n.Left, n.Right} {
			if sub := walk(child); sub != nil {
				return append([]NodeID{id}, sub...)
			}
		}
		return nil
	}
	return walk(p.root)
}

// JoinNodes returns the ids of all join nodes, children before parents.
func (p Plan) JoinNodes() []NodeID {
	ret := make([]NodeID, 0)
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := p.arena.node(id)
		if !n.IsJoin() {
			return
		}
		walk(n.Left)
		walk(n.Right)
		ret = append(ret, id)
	}
	walk(p.root)
	return ret
}

// LeafOrder lists the scanned relations from left to right.
func (p Plan) LeafOrder() []int {
	ret := make([]int, 0)
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := p.arena.node(id)
		if !n.IsJoin() {
			ret = append(ret, n.Rel)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(p.root)
	return ret
}
