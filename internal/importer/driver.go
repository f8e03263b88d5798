package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alhumaw/MISP-tools-fork/internal/checkpoint"
	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/dedup"
	"github.com/alhumaw/MISP-tools-fork/internal/galaxy"
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/mapper"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
	"github.com/alhumaw/MISP-tools-fork/pkg/circuitbreaker"
	"github.com/alhumaw/MISP-tools-fork/pkg/logging"
	"github.com/alhumaw/MISP-tools-fork/pkg/metrics"
	"github.com/alhumaw/MISP-tools-fork/pkg/retry"
)

// Options carries the per-run policy knobs of the sync driver.
type Options struct {
	// ActorKind filters the delta feed ("all", "targeted", "ecrime", ...).
	ActorKind string

	// LookbackDays bounds the first-run window; clamped to the maximum.
	LookbackDays int

	Publish bool
	Mapper  mapper.Config
	Retry   retry.Policy

	// Limiter and Breaker are optional; nil disables them.
	Limiter *rate.Limiter
	Breaker *circuitbreaker.Wrapper
}

// Driver runs one checkpointed sync pass: delta fetch, cluster alignment,
// concurrent import, checkpoint advance. Each phase before the fan-out is
// fatal on error so a broken run never moves the watermark.
type Driver struct {
	intel intel.Client
	misp  misp.Client
	store checkpoint.Store
	index *dedup.Index
	org   *misp.Organisation
	opts  Options
	log   logger.Logger

	// now is injectable for tests.
	now func() time.Time
}

func NewDriver(intelClient intel.Client, mispClient misp.Client, store checkpoint.Store, index *dedup.Index, org *misp.Organisation, opts Options, log logger.Logger) *Driver {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Driver{
		intel: intelClient,
		misp:  mispClient,
		store: store,
		index: index,
		org:   org,
		opts:  opts,
		log:   log,
		now:   time.Now,
	}
}

// Run executes one sync pass. The checkpoint only advances after the whole
// batch has been dispatched, to one past the highest last_modified_date that
// was actually imported; dropped actors hold the watermark back so the next
// run re-fetches them.
func (d *Driver) Run(ctx context.Context) error {
	ctx = logging.WithRunID(ctx, uuid.NewString())

	since, err := d.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if since == 0 {
		since = d.firstRunWindow()
		d.log.InfowCtx(ctx, "No checkpoint found, starting from lookback window",
			"since", since,
		)
	}

	infos, err := d.misp.EventIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch event index: %w", err)
	}
	seeded := d.index.SeedFromEventInfos(infos)

	actors, err := d.intel.GetActors(ctx, since, d.opts.ActorKind)
	if err != nil {
		return fmt.Errorf("failed to fetch adversary delta: %w", err)
	}

	if len(actors) == 0 {
		// Nothing changed; fast-forward so the next run scans a small window.
		now := d.now().Unix()
		if err := d.store.Advance(ctx, now); err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}
		metrics.SetCheckpointTimestamp(now)
		d.log.InfowCtx(ctx, "No adversary changes since checkpoint",
			"since", since,
			"checkpoint", now,
		)
		return nil
	}

	ids := make([]int64, 0, len(actors))
	for _, actor := range actors {
		ids = append(ids, actor.ID)
	}

	details, err := d.intel.GetActorEntities(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch adversary details: %w", err)
	}
	detailsByID := intel.DetailsByID(details)

	aligner := galaxy.NewAligner(d.misp, d.org, d.log)
	clusterMap, err := aligner.Align(ctx, actors, detailsByID)
	if err != nil {
		return fmt.Errorf("failed to align galaxy clusters: %w", err)
	}

	m := mapper.New(d.opts.Mapper, *d.org, clusterMap, d.log)
	sched := newScheduler(d.misp, m, d.index, d.opts.Retry, d.opts.Publish, d.opts.Limiter, d.opts.Breaker, d.log)

	staged, err := sched.run(ctx, actors, detailsByID)
	if err != nil {
		return fmt.Errorf("import interrupted: %w", err)
	}

	if staged > 0 {
		if err := d.store.Advance(ctx, staged); err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}
		metrics.SetCheckpointTimestamp(staged)
	}

	d.log.InfowCtx(ctx, "Sync pass complete",
		"since", since,
		"actors", len(actors),
		"seeded", seeded,
		"checkpoint", staged,
	)
	return nil
}

// firstRunWindow derives the initial delta window from the configured
// lookback, clamped to the maximum supported by the feed.
func (d *Driver) firstRunWindow() int64 {
	lookback := d.opts.LookbackDays
	if lookback <= 0 {
		lookback = constants.DefaultLookbackDays
	}
	if lookback > constants.MaxLookbackDays {
		lookback = constants.MaxLookbackDays
	}
	return d.now().AddDate(0, 0, -lookback).Unix()
}
