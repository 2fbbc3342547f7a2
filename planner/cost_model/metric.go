package cost_model

import (
	"strings"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

type Metric int

const (
	// execution time in milliseconds
	Time Metric = iota
	// monetary cost of the machines used
	Fees
	// pages read and written
	IO
	// bytes of all intermediate join results
	ByteSize
	nrKnownMetrics
)

func (m Metric) String() string {
	switch m {
	case Time:
		return "time"
	case Fees:
		return "fees"
	case IO:
		return "io"
	case ByteSize:
		return "bytesize"
	default:
		return "unknown"
	}
}

func ParseMetric(name string) (Metric, error) {
	for m := Time; m < nrKnownMetrics; m++ {
		if m.String() == strings.ToLower(name) {
			return m, nil
		}
	}
	return -1, common.NewConfigurationError("unknown metric %q", name)
}

func AllMetrics() []Metric {
	return []Metric{Time, Fees, IO, ByteSize}
}

// ValidateMetrics checks a list of considered metrics against the run configuration.
func ValidateMetrics(considered []Metric, cfg *common.Config) error {
	if len(considered) == 0 {
		return common.NewConfigurationError("no metric considered")
	}
	if len(considered) > cfg.NrMetrics {
		return common.NewConfigurationError("%d metrics considered but only %d enabled", len(considered), cfg.NrMetrics)
	}
	for _, m := range considered {
		if m < 0 || m >= nrKnownMetrics {
			return common.NewConfigurationError("unknown metric %d", int(m))
		}
	}
	if dups := lo.FindDuplicates(considered); len(dups) > 0 {
		return common.NewConfigurationError("metrics considered twice: %v", dups)
	}
	return nil
}

// CostVector holds one value per considered metric, in the order of the
// metric list it was evaluated for.
type CostVector []float64

// Dominates is true iff v is no worse than o in every entry and better in one.
func (v CostVector) Dominates(o CostVector) bool {
	common.SH_Assert(len(v) == len(o), "cost vectors of different length")
	strictlyBetter := false
	for i := range v {
		if v[i] > o[i] {
			return false
		}
		if v[i] < o[i] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// WeaklyDominates is true iff v is no worse than o in every entry.
func (v CostVector) WeaklyDominates(o CostVector) bool {
	common.SH_Assert(len(v) == len(o), "cost vectors of different length")
	for i := range v {
		if v[i] > o[i] {
			return false
		}
	}
	return true
}

func (v CostVector) Equal(o CostVector) bool {
	return len(v) == len(o) && floats.Equal(v, o)
}

func (v CostVector) Sum() float64 {
	return floats.Sum(v)
}

// Project picks the entries of the given metric positions.
func (v CostVector) Project(positions []int) CostVector {
	ret := make(CostVector, len(positions))
	for i, pos := range positions {
		ret[i] = v[pos]
	}
	return ret
}
