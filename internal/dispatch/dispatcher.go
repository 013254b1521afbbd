package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/airtax/internal/config"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	obslogger "github.com/smallbiznis/airtax/internal/observability/logger"
	"github.com/smallbiznis/airtax/pkg/log/ctxlogger"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	statusCompleted = "completed"
	statusPartial   = "partial"
	statusAborted   = "aborted"
)

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Evaluator evaluationdomain.Service
	GenID     *snowflake.Node

	Metrics        *telemetry.Metrics   `optional:"true"`
	TracerProvider trace.TracerProvider `optional:"true"`
}

// Dispatcher evaluates a batch of itineraries on a bounded worker pool.
type Dispatcher struct {
	log       *zap.Logger
	evaluator evaluationdomain.Service
	genID     *snowflake.Node
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	workers   int
}

func New(p Params) *Dispatcher {
	workers := p.Config.DispatchWorkers
	if workers <= 0 {
		workers = 1
	}
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Dispatcher{
		log:       p.Log.Named("dispatch"),
		evaluator: p.Evaluator,
		genID:     p.GenID,
		metrics:   p.Metrics,
		tracer:    tp.Tracer("airtax/dispatch"),
		workers:   workers,
	}
}

// Dispatch returns one frozen set per itinerary, at the itinerary's input
// position. A failing itinerary never affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context, itineraries []*itinerary.Itinerary) []*evaluationdomain.ComputedTaxSet {
	start := time.Now()
	runID := d.genID.Generate().String()
	ctx = ctxlogger.ContextWithRunID(ctx, runID)
	ctx, span := d.tracer.Start(ctx, "dispatch.batch", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("itineraries", len(itineraries)),
		attribute.Int("workers", d.workers),
	))
	defer span.End()

	log := obslogger.WithContext(ctx, d.log)
	results := make([]*evaluationdomain.ComputedTaxSet, len(itineraries))

	p := pool.New().WithMaxGoroutines(d.workers)
	for i, it := range itineraries {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			results[i] = d.run(ctx, log, i, it)
		})
	}
	p.Wait()

	status := statusCompleted
	for i := range results {
		if results[i] == nil {
			results[i] = abortedSet(i)
		}
		if results[i].Incomplete && status == statusCompleted {
			status = statusPartial
		}
	}
	if ctx.Err() != nil {
		status = statusAborted
	}

	span.SetAttributes(attribute.String("status", status))
	d.metrics.RecordDispatch(status, time.Since(start))
	log.Info("dispatch finished",
		zap.Int("itineraries", len(itineraries)),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return results
}

func (d *Dispatcher) run(ctx context.Context, log *zap.Logger, index int, it *itinerary.Itinerary) (set *evaluationdomain.ComputedTaxSet) {
	if ctx.Err() != nil {
		return abortedSet(index)
	}

	d.metrics.AddInFlight(1)
	defer d.metrics.AddInFlight(-1)

	defer func() {
		if r := recover(); r != nil {
			log.Error("itinerary evaluation panicked",
				zap.Int("itinerary_index", index),
				zap.String("panic", fmt.Sprint(r)),
			)
			set = failedSet(index, evaluationdomain.ReasonPanic)
		}
	}()

	set, err := d.evaluator.Evaluate(ctx, index, it)
	if err != nil {
		log.Warn("itinerary evaluation failed", zap.Int("itinerary_index", index), zap.Error(err))
	}
	if set == nil {
		set = failedSet(index, evaluationdomain.ReasonAborted)
	}
	return set
}

func abortedSet(index int) *evaluationdomain.ComputedTaxSet {
	return failedSet(index, evaluationdomain.ReasonAborted)
}

func failedSet(index int, reason string) *evaluationdomain.ComputedTaxSet {
	set := evaluationdomain.NewComputedTaxSet(index)
	set.Fail(evaluationdomain.Failure{Reason: reason})
	set.Freeze(nil, nil)
	return set
}
