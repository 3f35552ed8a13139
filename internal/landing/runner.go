package landing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/usageland/internal/domain"
	"github.com/dunamismax/usageland/internal/id"
	"github.com/dunamismax/usageland/internal/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusLanded = "landed"
	statusFailed = "failed"
)

type Fetcher interface {
	Fetch(ctx context.Context, date domain.Date) (domain.UsageRecord, error)
}

// Summary lists what a single Run wrote. It is not persisted anywhere.
type Summary struct {
	RunID   string
	Range   domain.DateRange
	Written []string
}

type Runner struct {
	logger    zerolog.Logger
	fetcher   Fetcher
	publisher Publisher
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewRunner(logger zerolog.Logger, fetcher Fetcher, writer storage.ObjectWriter, prefix string) (*Runner, error) {
	if fetcher == nil {
		return nil, errors.New("usage fetcher is required")
	}
	if writer == nil {
		return nil, errors.New("storage writer is required")
	}

	return &Runner{
		logger:    logger,
		fetcher:   fetcher,
		publisher: Publisher{Storage: writer, Prefix: prefix},
		metrics:   NewMetrics(),
		tracer:    otel.Tracer("usageland/landing"),
		now:       time.Now,
	}, nil
}

func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Run lands every day of rng in ascending order. The first failure stops the
// run; days before it stay written.
func (r *Runner) Run(ctx context.Context, rng domain.DateRange) (Summary, error) {
	summary := Summary{RunID: id.New(), Range: rng}
	if err := rng.Validate(); err != nil {
		r.metrics.runInvalidRanges.Inc()
		return summary, err
	}

	startedAt := r.now()
	logger := r.logger.With().Str("run_id", summary.RunID).Logger()

	ctx, span := r.tracer.Start(ctx, "landing.run", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("run.id", summary.RunID),
		attribute.String("run.start", rng.Start.String()),
		attribute.String("run.end", rng.End.String()),
		attribute.Int("run.days", rng.Days()),
	)
	defer span.End()
	defer func() {
		r.metrics.runDuration.Set(r.now().Sub(startedAt).Seconds())
	}()

	logger.Info().
		Str("start", rng.Start.String()).
		Str("end", rng.End.String()).
		Int("days", rng.Days()).
		Msg("starting landing run")

	err := rng.Each(func(date domain.Date) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		objectKey, err := r.landDay(ctx, logger, date)
		if err != nil {
			r.metrics.daysTotal.WithLabelValues(statusFailed).Inc()
			return fmt.Errorf("land %s: %w", date, err)
		}

		r.metrics.daysTotal.WithLabelValues(statusLanded).Inc()
		summary.Written = append(summary.Written, objectKey)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "landing run failed")
		logger.Error().Err(err).Int("written", len(summary.Written)).Msg("landing run failed")
		return summary, err
	}

	r.metrics.lastSuccess.Set(float64(r.now().Unix()))
	span.SetStatus(codes.Ok, "landed")
	logger.Info().Int("written", len(summary.Written)).Msg("landing run complete")
	return summary, nil
}

func (r *Runner) landDay(ctx context.Context, logger zerolog.Logger, date domain.Date) (string, error) {
	ctx, span := r.tracer.Start(ctx, "landing.day")
	span.SetAttributes(attribute.String("usage.date", date.String()))
	defer span.End()

	fetchStarted := r.now()
	record, err := r.fetcher.Fetch(ctx, date)
	r.metrics.fetchDuration.Observe(r.now().Sub(fetchStarted).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", fmt.Errorf("fetch: %w", err)
	}

	publishStarted := r.now()
	objectKey, err := r.publisher.Publish(ctx, record)
	r.metrics.publishDuration.Observe(r.now().Sub(publishStarted).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return "", fmt.Errorf("publish: %w", err)
	}

	r.metrics.payloadBytes.Add(float64(len(record.Payload)))
	span.SetAttributes(
		attribute.String("blob.key", objectKey),
		attribute.Int("blob.bytes", len(record.Payload)),
	)

	logger.Info().
		Str("date", date.String()).
		Str("object_key", objectKey).
		Int("bytes", len(record.Payload)).
		Msg("landed usage")
	return objectKey, nil
}
