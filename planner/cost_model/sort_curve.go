package cost_model

import (
	"math"

	"github.com/itrummer/query-optimizer-lib-sub001/common"
)

// NearestSortConfig selects the configured (io sort buffer, sort factor) point
// whose buffer size is closest to the data each machine has to sort.
// On ties the smaller buffer wins.
func NearestSortConfig(configs []common.SortConfig, shareMB float64) common.SortConfig {
	common.SH_Assert(len(configs) > 0, "no io sort configs")
	best := configs[0]
	for _, sc := range configs[1:] {
		d := math.Abs(sc.BufferMB - shareMB)
		bestD := math.Abs(best.BufferMB - shareMB)
		if d < bestD || (d == bestD && sc.BufferMB < best.BufferMB) {
			best = sc
		}
	}
	return best
}

// MergePasses is the number of merge passes over spilled runs when shareMB
// is sorted with the given buffer and fan-in. Data fitting into the buffer
// needs none.
func MergePasses(shareMB float64, sc common.SortConfig) float64 {
	if shareMB <= sc.BufferMB {
		return 0
	}
	runs := math.Ceil(shareMB / sc.BufferMB)
	return math.Max(1, math.Ceil(math.Log(runs)/math.Log(float64(sc.Factor))))
}
