package benchmark

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/itrummer/query-optimizer-lib-sub001/common"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/cost_model"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/optimizer"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/pareto"
	"github.com/itrummer/query-optimizer-lib-sub001/planner/plan_space"
	"github.com/itrummer/query-optimizer-lib-sub001/query"
	"github.com/itrummer/query-optimizer-lib-sub001/statistics"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// feature under which the harness stores the number of plans each optimizer returned
const FrontierSizeFeature = "frontierSize"

type Options struct {
	Optimizers []optimizer.Optimizer
	Metrics    []cost_model.Metric
	// numbers of relations, one size index per entry
	Sizes     []int
	NrQueries int
	Shape     GraphShape
	Seed      int64
	// number of invocations running at the same time
	Workers int
}

// Harness compares optimizers on generated queries. For every query it
// computes the reference frontier with the exhaustive optimizer and then runs
// each optimizer as an independent invocation on a worker pool.
type Harness struct {
	cfg   *common.Config
	opts  Options
	stats *statistics.Recorder
	runID uuid.UUID
}

func NewHarness(cfg *common.Config, opts Options) (*Harness, error) {
	if len(opts.Optimizers) == 0 {
		return nil, common.NewConfigurationError("no optimizer to benchmark")
	}
	if err := cost_model.ValidateMetrics(opts.Metrics, cfg); err != nil {
		return nil, err
	}
	for _, size := range opts.Sizes {
		if size < 1 || size > optimizer.MaxExhaustiveRelations {
			return nil, common.NewConfigurationError("query size %d outside [1, %d]", size, optimizer.MaxExhaustiveRelations)
		}
	}
	if opts.NrQueries < 1 {
		return nil, common.NewConfigurationError("at least one query per size needed, got %d", opts.NrQueries)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Harness{
		cfg:   cfg,
		opts:  opts,
		stats: statistics.NewRecorder(),
		runID: uuid.New(),
	}, nil
}

func (h *Harness) RunID() uuid.UUID {
	return h.runID
}

func (h *Harness) Stats() *statistics.Recorder {
	return h.stats
}

// newInvocation gives every invocation its own config, plan space and cost model.
func (h *Harness) newInvocation(q *query.Query, ref *pareto.ParetoPlanSet, algIdx int, sizeIdx int, queryIdx int) *optimizer.Invocation {
	cfg := h.cfg.Clone()
	return &optimizer.Invocation{
		Space:     plan_space.NewClusterPlanSpace(cfg, q),
		Costs:     cost_model.NewClusterCostModel(cfg),
		Metrics:   h.opts.Metrics,
		Reference: ref,
		Stats:     h.stats,
		AlgIdx:    algIdx,
		SizeIdx:   sizeIdx,
		QueryIdx:  queryIdx,
		Config:    cfg,
	}
}

// Run executes all invocations and returns the combined errors of the failed ones.
func (h *Harness) Run() error {
	log := common.Logger().With(zap.String("run", h.runID.String()))
	pool, err := ants.NewPool(h.opts.Workers)
	if err != nil {
		return errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		errsMtx sync.Mutex
		errs    error
	)
	addErr := func(err error) {
		errsMtx.Lock()
		defer errsMtx.Unlock()
		errs = errors.CombineErrors(errs, err)
	}

	gen := NewQueryGenerator(h.opts.Seed)
	reference := optimizer.NewExhaustiveOptimizer()
	for sizeIdx, size := range h.opts.Sizes {
		size := size
		for queryIdx := 0; queryIdx < h.opts.NrQueries; queryIdx++ {
			q, err := gen.Generate(h.opts.Shape, size)
			if err != nil {
				addErr(err)
				continue
			}
			ref, err := reference.ApproximateParetoSet(h.newInvocation(q, nil, -1, sizeIdx, queryIdx))
			if err != nil {
				addErr(errors.Wrapf(err, "reference frontier of query %d of size %d", queryIdx, size))
				continue
			}
			log.Debug("reference frontier",
				zap.Int("size", size),
				zap.Int("query", queryIdx),
				zap.Int("nrPlans", ref.Len()))

			for algIdx, opt := range h.opts.Optimizers {
				inv := h.newInvocation(q, ref, algIdx, sizeIdx, queryIdx)
				opt := opt
				wg.Add(1)
				task := func() {
					defer wg.Done()
					result, err := opt.ApproximateParetoSet(inv)
					if err != nil {
						addErr(errors.Wrapf(err, "%s on query %d of size %d", opt.Name(), inv.QueryIdx, size))
						return
					}
					h.stats.Record(FrontierSizeFeature, inv.AlgIdx, inv.SizeIdx, 0, inv.QueryIdx, float64(result.Len()))
				}
				if err := pool.Submit(task); err != nil {
					wg.Done()
					addErr(errors.Wrapf(err, "submit %s", opt.Name()))
				}
			}
		}
	}
	wg.Wait()

	if errs != nil {
		log.Error("benchmark finished with errors", zap.Error(errs))
	} else {
		log.Info("benchmark finished", zap.Int("nrEntries", h.stats.Len()))
	}
	return errs
}
