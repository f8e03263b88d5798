package importer

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/dedup"
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/mapper"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
	"github.com/alhumaw/MISP-tools-fork/pkg/circuitbreaker"
	apperrors "github.com/alhumaw/MISP-tools-fork/pkg/errors"
	"github.com/alhumaw/MISP-tools-fork/pkg/metrics"
	"github.com/alhumaw/MISP-tools-fork/pkg/retry"
)

// scheduler fans one run's actor batch out to a bounded worker pool. A task
// failure never fails the run: the actor is dropped, released from the dedup
// index and picked up again by a later run. Only context cancellation stops
// the pool early.
type scheduler struct {
	misp    misp.Client
	mapper  *mapper.Mapper
	index   *dedup.Index
	policy  retry.Policy
	publish bool
	limiter *rate.Limiter
	breaker *circuitbreaker.Wrapper
	log     logger.Logger
}

func newScheduler(client misp.Client, m *mapper.Mapper, index *dedup.Index, policy retry.Policy, publish bool, limiter *rate.Limiter, breaker *circuitbreaker.Wrapper, log logger.Logger) *scheduler {
	return &scheduler{
		misp:    client,
		mapper:  m,
		index:   index,
		policy:  policy,
		publish: publish,
		limiter: limiter,
		breaker: breaker,
		log:     log,
	}
}

// run imports the batch and returns the staged watermark: one past the
// highest last_modified_date among successfully imported actors, zero when
// nothing was imported.
func (s *scheduler) run(ctx context.Context, actors []intel.ActorRecord, details map[int64]intel.DetailRecord) (int64, error) {
	g, ctx := errgroup.WithContext(ctx)

	limit := s.misp.MaxConcurrency()
	if limit <= 0 {
		limit = constants.DefaultConcurrency
	}
	g.SetLimit(limit)

	var watermark atomic.Int64
	for idx := range actors {
		actor := actors[idx]
		g.Go(func() error {
			defer func() {
				if err := apperrors.RecoverPanic(recover()); err != nil {
					s.index.Unmark(dedup.Key(actor.ID))
					metrics.ActorsProcessedTotal.WithLabelValues(metrics.StatusDropped).Inc()
					s.log.ErrorwCtx(ctx, "Import worker panicked",
						"actor", actor.Name,
						"error", err,
					)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			s.importActor(ctx, actor, details[actor.ID], &watermark)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return watermark.Load(), nil
}

func (s *scheduler) importActor(ctx context.Context, actor intel.ActorRecord, detail intel.DetailRecord, watermark *atomic.Int64) {
	key := dedup.Key(actor.ID)
	if !s.index.MarkIfNew(key) {
		metrics.ActorsProcessedTotal.WithLabelValues(metrics.StatusSkippedDuplicate).Inc()
		s.log.DebugwCtx(ctx, "Adversary already imported, skipping",
			"actor", actor.Name,
			"key", key,
		)
		return
	}

	start := time.Now()

	ev, err := s.mapper.Map(ctx, actor, detail)
	if err != nil {
		s.index.Unmark(key)
		metrics.ActorsProcessedTotal.WithLabelValues(metrics.StatusSkippedInvalid).Inc()
		s.log.WarnwCtx(ctx, "Adversary record failed validation, skipping",
			"key", key,
			"error", err,
		)
		return
	}

	if err := s.submit(ctx, ev); err != nil {
		s.index.Unmark(key)
		metrics.ActorsProcessedTotal.WithLabelValues(metrics.StatusDropped).Inc()
		metrics.ObserveImportDuration(time.Since(start), metrics.StatusDropped)
		s.log.WarnwCtx(ctx, "Dropped adversary after exhausting retries",
			"actor", actor.Name,
			"key", key,
			"error", err,
		)
		return
	}

	if actor.LastModifiedDate > 0 {
		s.stage(watermark, actor.LastModifiedDate+1)
	}
	metrics.ActorsProcessedTotal.WithLabelValues(metrics.StatusImported).Inc()
	metrics.ObserveImportDuration(time.Since(start), metrics.StatusImported)
	s.log.DebugwCtx(ctx, "Imported adversary",
		"actor", actor.Name,
		"key", key,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// submit pushes one event with bounded retry. The rate limiter and circuit
// breaker, when configured, wrap every attempt.
func (s *scheduler) submit(ctx context.Context, ev *misp.Event) error {
	attemptFn := func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.NewFatalError(err)
			}
		}

		if s.breaker != nil {
			_, err := s.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
				return s.misp.AddEvent(ctx, ev, s.publish)
			})
			return err
		}

		_, err := s.misp.AddEvent(ctx, ev, s.publish)
		return err
	}

	onRetry := func(attempt int, err error, nextDelay time.Duration) {
		metrics.ImportRetriesTotal.Inc()
		s.log.WarnwCtx(ctx, "Event submission failed, backing off",
			"info", ev.Info,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	}

	return retry.RetryWithCallback(ctx, s.policy, attemptFn, onRetry)
}

// stage lifts the shared watermark to ts, never lowering it.
func (s *scheduler) stage(watermark *atomic.Int64, ts int64) {
	for {
		current := watermark.Load()
		if ts <= current {
			return
		}
		if watermark.CompareAndSwap(current, ts) {
			return
		}
	}
}
