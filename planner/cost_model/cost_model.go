package cost_model

import (
	"math"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/execution/plans"
)

const (
	// memory of a sequential hash join, in pages. larger build sides spill.
	hashMemoryPages = 1024
	// outer block size of a block nested loop join, in pages
	bnlBlockPages = 64
	bytesPerMB    = 1 << 20
	millisPerHour = 3600 * 1000
)

type MultiCostModel interface {
	// Evaluate returns the cost of p for each metric of considered, in that order.
	Evaluate(p plans.Plan, considered []Metric) (CostVector, error)
}

// ClusterCostModel prices scans and sequential joins on a single machine and
// cluster joins as a distributed sort-merge job. Cumulative costs are the sum
// of the node-local costs of the tree.
type ClusterCostModel struct {
	cfg *common.Config
}

func NewClusterCostModel(cfg *common.Config) *ClusterCostModel {
	return &ClusterCostModel{cfg: cfg}
}

func (m *ClusterCostModel) Evaluate(p plans.Plan, considered []Metric) (CostVector, error) {
	if err := ValidateMetrics(considered, m.cfg); err != nil {
		return nil, err
	}
	if p.IsEmpty() {
		return nil, common.NewInvariantViolation("cost of empty plan requested")
	}
	all, err := m.cumulative(p, p.Root())
	if err != nil {
		return nil, err
	}
	ret := make(CostVector, len(considered))
	for i, metric := range considered {
		ret[i] = all[metric]
	}
	return ret, nil
}

func (m *ClusterCostModel) cumulative(p plans.Plan, id plans.NodeID) ([nrKnownMetrics]float64, error) {
	n := p.Node(id)
	local, err := m.local(p, &n)
	if err != nil {
		return local, err
	}
	if !n.IsJoin() {
		return local, nil
	}
	for _, child := range []plans.NodeID{n.Left, n.Right} {
		sub, err := m.cumulative(p, child)
		if err != nil {
			return sub, err
		}
		for i := range local {
			local[i] += sub[i]
		}
	}
	return local, nil
}

// bytes of the result of a subtree: tuples grow by one average tuple per relation
func (m *ClusterCostModel) bytes(n *plans.Node) float64 {
	return n.Cardinality() * float64(n.NrRelations()) * m.cfg.ByteSizePerTuple
}

func (m *ClusterCostModel) pages(n *plans.Node) float64 {
	return math.Ceil(m.bytes(n) / m.cfg.ByteSizePerPage)
}

func (m *ClusterCostModel) local(p plans.Plan, n *plans.Node) ([nrKnownMetrics]float64, error) {
	var ret [nrKnownMetrics]float64
	switch n.Type {
	case plans.ScanOp:
		io := m.pages(n)
		ret[IO] = io
		ret[Time] = io*m.cfg.PageIOMillis + n.Cardinality()*m.cfg.TupleCPUMillis
		ret[Fees] = ret[Time] / millisPerHour * m.cfg.MachineFeePerHour
		return ret, nil
	case plans.SeqJoinOp:
		l := p.Node(n.Left)
		r := p.Node(n.Right)
		io, cpuTuples, err := m.seqJoinWork(n.Algorithm, &l, &r, n)
		if err != nil {
			return ret, err
		}
		ret[IO] = io
		ret[Time] = io*m.cfg.PageIOMillis + cpuTuples*m.cfg.TupleCPUMillis
		ret[Fees] = ret[Time] / millisPerHour * m.cfg.MachineFeePerHour
		ret[ByteSize] = m.bytes(n)
		return ret, nil
	case plans.ClusterJoinOp:
		l := p.Node(n.Left)
		r := p.Node(n.Right)
		timeMillis, diskMB := m.clusterJoinWork(n, &l, &r)
		ret[Time] = timeMillis
		ret[Fees] = float64(n.Machines) * timeMillis / millisPerHour * m.cfg.MachineFeePerHour
		ret[IO] = math.Ceil(diskMB * bytesPerMB / m.cfg.ByteSizePerPage)
		ret[ByteSize] = m.bytes(n)
		return ret, nil
	default:
		return ret, common.NewConfigurationError("no cost formula for operator %s", n.Type)
	}
}

// seqJoinWork returns the pages read and written beyond the operand scans and
// the number of tuples processed by the CPU.
func (m *ClusterCostModel) seqJoinWork(alg plans.JoinAlgorithm, l *plans.Node, r *plans.Node, out *plans.Node) (float64, float64, error) {
	pl, pr := m.pages(l), m.pages(r)
	cl, cr, co := l.Cardinality(), r.Cardinality(), out.Cardinality()
	switch alg {
	case plans.HashJoin:
		// right operand is the build side
		io := 0.0
		if pr > hashMemoryPages {
			io = 2 * (pl + pr)
		}
		return io, cl + cr + co, nil
	case plans.SortMergeJoin:
		io := 2*pl*sortPasses(pl) + 2*pr*sortPasses(pr)
		return io, cl*math.Log2(cl+1) + cr*math.Log2(cr+1) + co, nil
	case plans.BlockNestedLoopJoin:
		// left operand is the outer relation
		io := math.Ceil(pl/bnlBlockPages) * pr
		return io, cl*cr/bnlBlockPages + co, nil
	default:
		return 0, 0, common.NewConfigurationError("no cost formula for join algorithm %s", alg)
	}
}

// external merge sort passes with the hash join memory as sort buffer
func sortPasses(pages float64) float64 {
	if pages <= hashMemoryPages {
		return 0
	}
	runs := math.Ceil(pages / hashMemoryPages)
	return math.Ceil(math.Log(runs) / math.Log(hashMemoryPages-1))
}

// clusterJoinWork returns the duration of a distributed sort-merge join and the
// megabytes spilled to disk over all machines.
func (m *ClusterCostModel) clusterJoinWork(n *plans.Node, l *plans.Node, r *plans.Node) (float64, float64) {
	machines := float64(n.Machines)
	lMB := m.bytes(l) / bytesPerMB
	rMB := m.bytes(r) / bytesPerMB

	var networkMB, shareMB float64
	if n.Parallel {
		// both operands are repartitioned on the join key
		networkMB = lMB + rMB
		shareMB = (lMB + rMB) / machines
	} else {
		// left operand stays where it is, right operand goes to every machine
		networkMB = rMB * machines
		shareMB = lMB/machines + rMB
	}

	sortCfg := NearestSortConfig(m.cfg.IOSortConfigs, shareMB)
	passes := MergePasses(shareMB, sortCfg)
	// spill writes and reads once per pass
	diskPerMachineMB := 0.0
	if passes > 0 {
		diskPerMachineMB = 2 * shareMB * passes
	}

	timeMillis := m.cfg.MachineStartupMillis +
		networkMB/(m.cfg.NetworkMBPerSec*machines)*1000 +
		(shareMB+diskPerMachineMB)/m.cfg.DiskMBPerSec*1000 +
		(l.Cardinality()+r.Cardinality()+n.Cardinality())/machines*m.cfg.TupleCPUMillis
	return timeMillis, diskPerMachineMB * machines
}
