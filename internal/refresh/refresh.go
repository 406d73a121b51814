// Package refresh runs the batch pass that brings stale post metrics up
// to date, one Reddit call per due record.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spacesedan/karmatrack/internal/clients"
	"github.com/spacesedan/karmatrack/internal/models"
	"github.com/spacesedan/karmatrack/internal/staleness"
	"github.com/spacesedan/karmatrack/internal/store"
)

// ErrLocked is returned when a pass is already running, in this process
// or (with Valkey configured) in another one.
var ErrLocked = errors.New("a refresh pass is already running")

// Fetcher is the slice of the Reddit client the orchestrator needs.
type Fetcher interface {
	FetchPostMetrics(ctx context.Context, subreddit, postID string) (models.PostMetrics, error)
}

// Summary is what one pass reports back.
type Summary struct {
	Updated           int
	SkippedTransient  int
	SkippedCovered    int
	MarkedUnreachable int
	Remaining         int
	RateLimitAborted  bool
}

func (s Summary) String() string {
	return fmt.Sprintf("updated=%d skipped_transient=%d skipped_covered=%d unreachable=%d remaining=%d rate_limit_aborted=%v",
		s.Updated, s.SkippedTransient, s.SkippedCovered, s.MarkedUnreachable, s.Remaining, s.RateLimitAborted)
}

// Orchestrator updates all due records in one pass. Each successful
// update is written through the store before the next fetch starts, so an
// aborted pass keeps everything applied so far and simply leaves the rest
// for the next invocation.
type Orchestrator struct {
	store     store.Store
	fetcher   Fetcher
	threshold time.Duration
	cache     *clients.ValkeyClient
	now       func() time.Time

	mu sync.Mutex
}

type Option func(*Orchestrator)

func WithThreshold(d time.Duration) Option {
	return func(o *Orchestrator) { o.threshold = d }
}

// WithCache wires the optional Valkey coordination layer.
func WithCache(vc *clients.ValkeyClient) Option {
	return func(o *Orchestrator) { o.cache = vc }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(s store.Store, f Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     s,
		fetcher:   f,
		threshold: staleness.DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one pass. force bypasses the staleness filter but still
// skips unreachable records. Running twice back to back is a no-op the
// second time: nothing is due anymore.
func (o *Orchestrator) Run(ctx context.Context, force bool) (Summary, error) {
	if !o.mu.TryLock() {
		return Summary{}, ErrLocked
	}
	defer o.mu.Unlock()

	if o.cache != nil {
		owner, _ := os.Hostname()
		acquired, err := o.cache.AcquireSyncLock(ctx, fmt.Sprintf("%s/%d", owner, os.Getpid()), o.threshold)
		if err != nil {
			slog.Warn("[Refresh] sync lock unavailable, continuing without it",
				slog.String("error", err.Error()))
		} else if !acquired {
			return Summary{}, ErrLocked
		} else {
			defer o.cache.ReleaseSyncLock(ctx)
		}
	}

	recs, err := o.store.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := o.now().UTC()
	var due []models.PostRecord
	for _, rec := range recs {
		if force {
			if rec.Status != models.StatusUnreachable {
				due = append(due, rec)
			}
			continue
		}
		if staleness.IsDue(rec, now, o.threshold) {
			due = append(due, rec)
		}
	}

	slog.Info("[Refresh] starting pass",
		slog.Int("records", len(recs)),
		slog.Int("due", len(due)))

	var sum Summary
	for i, rec := range due {
		if o.cache != nil && o.cache.WasRefreshed(ctx, rec.PostID) {
			sum.SkippedCovered++
			continue
		}

		m, err := o.fetcher.FetchPostMetrics(ctx, rec.Subreddit, rec.PostID)
		switch {
		case err == nil:
			if err := o.store.UpdateMetrics(ctx, rec.PostID, m, now); err != nil {
				return sum, fmt.Errorf("[Refresh] failed to apply metrics for %s: %w", rec.PostID, err)
			}
			sum.Updated++
			if o.cache != nil {
				if err := o.cache.MarkRefreshed(ctx, rec.PostID, o.threshold); err != nil {
					slog.Warn("[Refresh] failed to mark post refreshed",
						slog.String("post_id", rec.PostID),
						slog.String("error", err.Error()))
				}
			}
			slog.Info("[Refresh] updated",
				slog.String("subreddit", rec.Subreddit),
				slog.String("post_id", rec.PostID),
				slog.Int("score", m.Score),
				slog.Int("comments", m.NumComments))

		case errors.Is(err, clients.ErrRateLimited):
			// Global signal: stop the pass, the next scheduled run
			// picks up whatever is left.
			sum.RateLimitAborted = true
			sum.Remaining = len(due) - i
			slog.Warn("[Refresh] rate limited, aborting pass",
				slog.Int("remaining", sum.Remaining))
			return sum, nil

		case errors.Is(err, clients.ErrPostNotFound):
			if err := o.store.MarkUnreachable(ctx, rec.PostID); err != nil {
				return sum, fmt.Errorf("[Refresh] failed to mark %s unreachable: %w", rec.PostID, err)
			}
			sum.MarkedUnreachable++
			slog.Warn("[Refresh] post gone upstream, marked unreachable",
				slog.String("post_id", rec.PostID))

		default:
			// One blip does not abort the batch.
			sum.SkippedTransient++
			slog.Warn("[Refresh] transient failure, skipping record",
				slog.String("post_id", rec.PostID),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("[Refresh] pass complete", slog.String("summary", sum.String()))
	return sum, nil
}
