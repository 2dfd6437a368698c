package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/addrverify/internal/model"
)

// DefaultWorkers is the record-level concurrency when none is configured.
const DefaultWorkers = 10

// Orchestrator drives records through ordered waves of stages. Stages in
// one wave run concurrently for a record; waves run strictly in order.
type Orchestrator struct {
	waves   [][]Stage
	workers int
}

// NewOrchestrator returns an orchestrator with the given waves. workers
// below 1 falls back to DefaultWorkers.
func NewOrchestrator(workers int, waves ...[]Stage) *Orchestrator {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Orchestrator{waves: waves, workers: workers}
}

// Standard builds the geocode, then imagery and footprint, then
// validation plan.
func Standard(workers int, geocode, imagery, footprint, validation Stage) *Orchestrator {
	return NewOrchestrator(workers,
		[]Stage{geocode},
		[]Stage{imagery, footprint},
		[]Stage{validation},
	)
}

// Run processes every record and returns bundles in input order. It never
// fails: stage errors and a cancelled ctx are recorded on the bundles, and
// every record gets a bundle.
func (o *Orchestrator) Run(ctx context.Context, records []model.Record) []*model.SignalBundle {
	bundles := make([]*model.SignalBundle, len(records))
	for i, rec := range records {
		bundles[i] = model.NewBundle(rec)
	}

	start := time.Now()
	zap.L().Info("pipeline: starting batch",
		zap.Int("records", len(records)),
		zap.Int("workers", o.workers),
	)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range records {
		rec, b := records[i], bundles[i]
		g.Go(func() error {
			o.process(ctx, rec, b)
			return nil
		})
	}
	_ = g.Wait()

	fields := []zap.Field{
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if ctx.Err() != nil {
		zap.L().Warn("pipeline: batch aborted", append(fields, zap.Error(ctx.Err()))...)
	} else {
		zap.L().Info("pipeline: batch complete", fields...)
	}
	return bundles
}

// Process runs a single record through every wave.
func (o *Orchestrator) Process(ctx context.Context, rec model.Record) *model.SignalBundle {
	b := model.NewBundle(rec)
	o.process(ctx, rec, b)
	return b
}

func (o *Orchestrator) process(ctx context.Context, rec model.Record, b *model.SignalBundle) {
	for _, wave := range o.waves {
		if ctx.Err() != nil {
			for _, s := range wave {
				if !s.Done(b) {
					b.AddFailure(s.Name(), model.StatusAborted)
				}
			}
			continue
		}

		var ready []Stage
		for _, s := range wave {
			switch {
			case s.Done(b):
			case s.Ready(b):
				ready = append(ready, s)
			default:
				s.Skip(b)
			}
		}

		errs := make([]error, len(ready))
		if len(ready) == 1 {
			errs[0] = ready[0].Run(ctx, rec, b)
		} else if len(ready) > 1 {
			var g errgroup.Group
			for i, s := range ready {
				g.Go(func() error {
					errs[i] = s.Run(ctx, rec, b)
					return nil
				})
			}
			_ = g.Wait()
		}

		// Markers are appended after the wave so concurrent stages never
		// share a write.
		for i, err := range errs {
			if err == nil {
				continue
			}
			zap.L().Warn("pipeline: stage failed",
				zap.String("stage", ready[i].Name()),
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
			b.AddFailure(ready[i].Name(), err.Error())
		}
	}
}
