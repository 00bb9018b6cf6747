// Package reconcile merges fragmented and duplicate session records into
// logical sessions, both incrementally on insert and in batch over storage.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/reflectra/pkg/models"
	"github.com/thebtf/reflectra/pkg/urlnorm"
)

// Store is the persistence the reconciler needs.
type Store interface {
	Find(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error)
	Insert(ctx context.Context, s *models.Session) (*models.Session, error)
	Update(ctx context.Context, id int64, upd models.SessionUpdate) (*models.Session, error)
	Delete(ctx context.Context, ids []int64) (int64, error)
}

// Categorizer assigns a category to freshly inserted sessions.
type Categorizer interface {
	Categorize(ctx context.Context, url, title string) (int64, error)
}

// Locker serializes lookup-then-write for one normalized URL.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UpdateHook is called after every insert or merge with the persisted record.
type UpdateHook func(ctx context.Context, s *models.Session, merged bool)

// Options configures the reconciler. Zero durations select the defaults.
type Options struct {
	// Lookback bounds how far before a candidate's start prior records are searched.
	Lookback int64
	// MaxGap is the largest end-to-start gap treated as a continuation.
	MaxGap int64
	// CleanupWindow is the start-to-start window used by ReconcileAll.
	CleanupWindow int64

	Categorizer Categorizer
	// Locker is optional. Without it, two concurrent inserts for the same URL can
	// both insert; ReconcileAll folds them later.
	Locker   Locker
	OnUpdate UpdateHook
}

func (o *Options) applyDefaults() {
	if o.Lookback <= 0 {
		o.Lookback = DefaultLookback
	}
	if o.MaxGap <= 0 {
		o.MaxGap = DefaultMaxGap
	}
	if o.CleanupWindow <= 0 {
		o.CleanupWindow = DefaultCleanupWindow
	}
}

// Reconciler implements merge-on-insert and storage cleanup.
type Reconciler struct {
	store Store
	opts  Options

	inserted metric.Int64Counter
	merged   metric.Int64Counter
	deleted  metric.Int64Counter
}

// New creates a reconciler over store.
func New(store Store, opts Options) *Reconciler {
	opts.applyDefaults()

	meter := otel.Meter("github.com/thebtf/reflectra/internal/reconcile")
	r := &Reconciler{store: store, opts: opts}
	r.inserted, _ = meter.Int64Counter("reflectra.sessions.inserted",
		metric.WithDescription("Sessions inserted as new records"))
	r.merged, _ = meter.Int64Counter("reflectra.sessions.merged",
		metric.WithDescription("Sessions folded into an existing record"))
	r.deleted, _ = meter.Int64Counter("reflectra.sessions.duplicates_deleted",
		metric.WithDescription("Duplicate fragments removed"))
	return r
}

// Options returns the effective options.
func (r *Reconciler) Options() Options {
	return r.opts
}

// RecordSession stores candidate, folding it into the oldest record of the same
// owner for the same normalized URL in the lookback window when it continues that record.
// Only validation failures (ErrInvalidSession) and a failed final insert are
// returned; lookup and cleanup failures degrade to an unmerged insert.
func (r *Reconciler) RecordSession(ctx context.Context, candidate *models.Session) (*models.RecordResult, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	key := urlnorm.Normalize(candidate.URL)
	if r.opts.Locker != nil {
		unlock, err := r.opts.Locker.Lock(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("url", key).Msg("URL lock unavailable, continuing unlocked")
		} else {
			defer unlock()
		}
	}

	if res := r.tryMerge(ctx, key, candidate); res != nil {
		return res, nil
	}
	return r.insert(ctx, candidate)
}

// tryMerge returns nil when the candidate must be inserted as new.
func (r *Reconciler) tryMerge(ctx context.Context, key string, candidate *models.Session) *models.RecordResult {
	found, err := r.store.Find(ctx, models.SessionFilter{
		NormalizedURL: key,
		OwnerID:       candidate.OwnerID,
		From:          candidate.Timestamp - r.opts.Lookback,
		To:            candidate.Timestamp,
	})
	if err != nil {
		log.Warn().Err(err).Str("url", key).Msg("Merge lookup failed, inserting as new")
		return nil
	}
	// An empty OwnerID filter is unconstrained, so ownerless candidates still
	// need the exact comparison here.
	matches := found[:0]
	for _, m := range found {
		if m.OwnerID == candidate.OwnerID {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	original := matches[0]
	for _, m := range matches[1:] {
		if m.Timestamp < original.Timestamp {
			original = m
		}
	}

	gap := candidate.Timestamp - original.End()
	if gap > r.opts.MaxGap {
		log.Debug().Str("url", key).Int64("gap_ms", gap).Msg("Gap too large, new visit")
		return nil
	}

	duration := original.Duration + candidate.Duration
	upd := models.SessionUpdate{Duration: &duration}
	if original.CategoryID == nil && candidate.CategoryID != nil {
		upd.CategoryID = candidate.CategoryID
	}
	updated, err := r.store.Update(ctx, original.ID, upd)
	if err != nil || updated == nil {
		log.Warn().Err(err).Int64("id", original.ID).Msg("Merge update failed, inserting as new")
		return nil
	}
	r.merged.Add(ctx, 1)

	// The survivor already holds the accumulated duration; leftover fragments are
	// a safe degraded state that ReconcileAll removes later.
	var redundant []int64
	for _, m := range matches {
		if m.ID != original.ID {
			redundant = append(redundant, m.ID)
		}
	}
	if len(redundant) > 0 {
		n, err := r.store.Delete(ctx, redundant)
		if err != nil {
			log.Error().Err(err).Int64("id", original.ID).Ints64("fragments", redundant).Msg("Failed to delete merge fragments")
		} else {
			r.deleted.Add(ctx, n)
		}
	}

	log.Debug().
		Int64("id", updated.ID).
		Int64("duration", updated.Duration).
		Int("fragments", len(redundant)).
		Msg("Session continued")

	r.notify(ctx, updated, true)
	return &models.RecordResult{Session: updated, Merged: true}
}

func (r *Reconciler) insert(ctx context.Context, candidate *models.Session) (*models.RecordResult, error) {
	s := candidate.Clone()
	s.ID = 0
	if s.CategoryID == nil && r.opts.Categorizer != nil {
		id, err := r.opts.Categorizer.Categorize(ctx, s.URL, s.Title)
		if err != nil {
			log.Warn().Err(err).Str("url", s.URL).Msg("Categorization at insert failed, leaving for sweep")
		} else {
			s.CategoryID = &id
		}
	}

	stored, err := r.store.Insert(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	r.inserted.Add(ctx, 1)

	r.notify(ctx, stored, false)
	return &models.RecordResult{Session: stored, Merged: false}, nil
}

func (r *Reconciler) notify(ctx context.Context, s *models.Session, merged bool) {
	if r.opts.OnUpdate != nil {
		r.opts.OnUpdate(ctx, s, merged)
	}
}

// ReconcileAll folds runs of stored records using the cleanup window: the survivor
// of each run receives the summed duration, the other members are deleted.
// Re-running it over its own output changes nothing.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*models.ReconcileResult, error) {
	sessions, err := r.store.Find(ctx, models.SessionFilter{})
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	result := &models.ReconcileResult{}
	for _, run := range buildRuns(sessions, r.opts.CleanupWindow) {
		if len(run.members) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		survivor := run.collapse()
		upd := models.SessionUpdate{Duration: &survivor.Duration}
		if run.members[0].CategoryID == nil && survivor.CategoryID != nil {
			upd.CategoryID = survivor.CategoryID
		}
		updated, err := r.store.Update(ctx, survivor.ID, upd)
		if err != nil || updated == nil {
			log.Error().Err(err).Int64("id", survivor.ID).Msg("Failed to update run survivor, skipping run")
			continue
		}

		n, err := r.store.Delete(ctx, run.folded())
		if err != nil {
			// The folded records still exist, so the survivor goes back to its own
			// duration and the next pass folds the run without counting it twice.
			log.Error().Err(err).Int64("id", survivor.ID).Msg("Failed to delete folded sessions, restoring survivor")
			prev := run.members[0].Duration
			if _, rerr := r.store.Update(ctx, survivor.ID, models.SessionUpdate{Duration: &prev}); rerr != nil {
				log.Error().Err(rerr).Int64("id", survivor.ID).Msg("Failed to restore run survivor")
			}
			continue
		}
		result.Merged++
		result.Deleted += int(n)
		r.merged.Add(ctx, int64(len(run.members)-1))
		r.deleted.Add(ctx, n)
		r.notify(ctx, updated, true)
	}

	log.Info().
		Int("sessions", len(sessions)).
		Int("merged", result.Merged).
		Int("deleted", result.Deleted).
		Msg("Sessions reconciled")
	return result, nil
}
