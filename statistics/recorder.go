package statistics

import (
	"io"
	"math"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// Sink receives the measurements of optimizer invocations. Optimizers only
// append to it.
type Sink interface {
	Record(feature string, algIdx int, sizeIdx int, periodIdx int, queryIdx int, value float64)
}

type Key struct {
	Feature   string
	AlgIdx    int
	SizeIdx   int
	PeriodIdx int
	QueryIdx  int
}

func compareKeys(a Key, b Key) int {
	switch {
	case a.Feature != b.Feature:
		if a.Feature < b.Feature {
			return -1
		}
		return 1
	case a.AlgIdx != b.AlgIdx:
		return a.AlgIdx - b.AlgIdx
	case a.SizeIdx != b.SizeIdx:
		return a.SizeIdx - b.SizeIdx
	case a.PeriodIdx != b.PeriodIdx:
		return a.PeriodIdx - b.PeriodIdx
	default:
		return a.QueryIdx - b.QueryIdx
	}
}

// Recorder is a Sink keeping every value in memory. A later value for the same
// key replaces the earlier one. Recorder can be shared by concurrent invocations.
type Recorder struct {
	mutex  deadlock.Mutex
	values map[Key]float64
}

func NewRecorder() *Recorder {
	return &Recorder{values: make(map[Key]float64)}
}

func (r *Recorder) Record(feature string, algIdx int, sizeIdx int, periodIdx int, queryIdx int, value float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.values[Key{feature, algIdx, sizeIdx, periodIdx, queryIdx}] = value
}

func (r *Recorder) Get(key Key) (float64, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *Recorder) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.values)
}

// Keys returns all keys ordered by feature, algorithm, size, period and query.
func (r *Recorder) Keys() []Key {
	r.mutex.Lock()
	keys := make([]Key, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	r.mutex.Unlock()
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Mean averages a feature over all recorded queries. A single +Inf entry makes
// the mean +Inf. ok is false if nothing was recorded.
func (r *Recorder) Mean(feature string, algIdx int, sizeIdx int, periodIdx int) (mean float64, ok bool) {
	r.mutex.Lock()
	vals := make([]float64, 0)
	for k, v := range r.values {
		if k.Feature == feature && k.AlgIdx == algIdx && k.SizeIdx == sizeIdx && k.PeriodIdx == periodIdx {
			vals = append(vals, v)
		}
	}
	r.mutex.Unlock()
	if len(vals) == 0 {
		return 0, false
	}
	if slices.ContainsFunc(vals, func(v float64) bool { return math.IsInf(v, 1) }) {
		return math.Inf(1), true
	}
	return stat.Mean(vals, nil), true
}

// Aggregate is the mean of one feature for an (algorithm, size, period) cell.
type Aggregate struct {
	AlgIdx    int
	SizeIdx   int
	PeriodIdx int
	NrQueries int
	Mean      float64
}

// Aggregates computes Mean for every cell in which feature was recorded,
// ordered by algorithm, size and period.
func (r *Recorder) Aggregates(feature string) []Aggregate {
	cells := make(map[Key]int)
	for _, k := range r.Keys() {
		if k.Feature != feature {
			continue
		}
		cells[Key{Feature: feature, AlgIdx: k.AlgIdx, SizeIdx: k.SizeIdx, PeriodIdx: k.PeriodIdx}]++
	}
	ret := make([]Aggregate, 0, len(cells))
	for cell, cnt := range cells {
		mean, _ := r.Mean(feature, cell.AlgIdx, cell.SizeIdx, cell.PeriodIdx)
		ret = append(ret, Aggregate{
			AlgIdx:    cell.AlgIdx,
			SizeIdx:   cell.SizeIdx,
			PeriodIdx: cell.PeriodIdx,
			NrQueries: cnt,
			Mean:      mean,
		})
	}
	slices.SortFunc(ret, func(a Aggregate, b Aggregate) int {
		return compareKeys(
			Key{AlgIdx: a.AlgIdx, SizeIdx: a.SizeIdx, PeriodIdx: a.PeriodIdx},
			Key{AlgIdx: b.AlgIdx, SizeIdx: b.SizeIdx, PeriodIdx: b.PeriodIdx})
	})
	return ret
}

type jsonRecord struct {
	Feature string      `json:"feature"`
	Alg     int         `json:"alg"`
	Size    int         `json:"size"`
	Period  int         `json:"period"`
	Query   int         `json:"query"`
	Value   interface{} `json:"value"`
}

// JSON has no infinities, they are written as strings.
func jsonValue(v float64) interface{} {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	default:
		return v
	}
}

// DumpJSON writes one JSON object per line in key order.
func (r *Recorder) DumpJSON(w io.Writer) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		rec := jsonRecord{
			Feature: k.Feature,
			Alg:     k.AlgIdx,
			Size:    k.SizeIdx,
			Period:  k.PeriodIdx,
			Query:   k.QueryIdx,
			Value:   jsonValue(v),
		}
		if err := enc.Encode(&rec); err != nil {
			return errors.Wrapf(err, "dump statistics entry %+v", k)
		}
	}
	return nil
}
