package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spacesedan/karmatrack/internal/clients"
	"github.com/spacesedan/karmatrack/internal/models"
	"github.com/spacesedan/karmatrack/internal/store"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string]fetchResult

	block   chan struct{}
	started chan struct{}
}

type fetchResult struct {
	m   models.PostMetrics
	err error
}

func (f *fakeFetcher) FetchPostMetrics(ctx context.Context, subreddit, postID string) (models.PostMetrics, error) {
	f.mu.Lock()
	f.calls = append(f.calls, postID)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	res, ok := f.results[postID]
	if !ok {
		return models.PostMetrics{Score: 1}, nil
	}
	return res.m, res.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupRefreshTest(t *testing.T, postIDs ...string) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	for i, id := range postIDs {
		rec := models.PostRecord{
			PostID:    id,
			URL:       fmt.Sprintf("https://reddit.com/r/a/comments/%s/x/", id),
			Subreddit: "r/a",
			Angle:     models.AngleStory,
			PostedAt:  time.Date(2025, 7, 1+i, 12, 0, 0, 0, time.UTC),
			Status:    models.StatusActive,
		}
		if _, err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return s, dir
}

func TestRunUpdatesDueRecords(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1", "p2")
	f := &fakeFetcher{results: map[string]fetchResult{
		"p1": {m: models.PostMetrics{Score: 50, NumComments: 3, UpvoteRatio: 0.9, Title: "one"}},
		"p2": {m: models.PostMetrics{Score: 20, NumComments: 1, UpvoteRatio: 0.8, Title: "two"}},
	}}

	sum, err := NewOrchestrator(s, f).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Updated != 2 {
		t.Fatalf("expected 2 updates, got %+v", sum)
	}

	recs, _ := s.List(context.Background())
	for _, rec := range recs {
		if rec.Score == nil || rec.LastChecked == nil {
			t.Errorf("record %s not updated: %+v", rec.PostID, rec)
		}
	}
}

func TestRateLimitAbortsPassButKeepsAppliedUpdates(t *testing.T) {
	s, dir := setupRefreshTest(t, "p1", "p2", "p3")
	f := &fakeFetcher{results: map[string]fetchResult{
		"p1": {m: models.PostMetrics{Score: 50}},
		"p2": {err: fmt.Errorf("%w: still throttled", clients.ErrRateLimited)},
		"p3": {m: models.PostMetrics{Score: 80}},
	}}

	sum, err := NewOrchestrator(s, f).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.RateLimitAborted {
		t.Fatalf("expected a rate-limit abort, got %+v", sum)
	}
	if sum.Updated != 1 || sum.Remaining != 2 {
		t.Errorf("expected 1 updated and 2 remaining, got %+v", sum)
	}
	if f.callCount() != 2 {
		t.Errorf("no further calls after the abort, got %d", f.callCount())
	}

	// Applied updates must be durable: reopen the store cold.
	reopened, err := store.NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, _ := reopened.List(context.Background())
	if recs[0].Score == nil || *recs[0].Score != 50 {
		t.Errorf("p1's update must survive the abort: %+v", recs[0])
	}
	if recs[1].Score != nil || recs[2].Score != nil {
		t.Errorf("p2/p3 must be untouched after the abort")
	}
}

func TestNotFoundMarksUnreachableAndStops(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1")
	f := &fakeFetcher{results: map[string]fetchResult{
		"p1": {err: fmt.Errorf("%w: gone", clients.ErrPostNotFound)},
	}}
	orch := NewOrchestrator(s, f)

	sum, err := orch.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.MarkedUnreachable != 1 {
		t.Fatalf("expected 1 unreachable, got %+v", sum)
	}

	recs, _ := s.List(context.Background())
	if recs[0].Status != models.StatusUnreachable {
		t.Fatalf("record should be marked unreachable: %+v", recs[0])
	}
	if recs[0].LastChecked != nil {
		t.Errorf("last_checked stays nil for unreachable records")
	}

	// Second pass: the record is excluded from staleness entirely.
	if _, err := orch.Run(context.Background(), false); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.callCount() != 1 {
		t.Errorf("unreachable record must not be fetched again, got %d calls", f.callCount())
	}
}

func TestTransientFailureSkipsRecordAndContinues(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1", "p2")
	f := &fakeFetcher{results: map[string]fetchResult{
		"p1": {err: fmt.Errorf("%w: connection reset", clients.ErrTransient)},
		"p2": {m: models.PostMetrics{Score: 9}},
	}}

	sum, err := NewOrchestrator(s, f).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.SkippedTransient != 1 || sum.Updated != 1 {
		t.Fatalf("expected skip-and-continue, got %+v", sum)
	}

	recs, _ := s.List(context.Background())
	if recs[0].LastChecked != nil {
		t.Errorf("skipped record keeps nil last_checked, so it stays due")
	}
	if recs[1].Score == nil {
		t.Errorf("the batch must continue past a transient failure")
	}
}

func TestBackToBackPassIsNoop(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1")
	f := &fakeFetcher{}
	orch := NewOrchestrator(s, f)

	if _, err := orch.Run(context.Background(), false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := orch.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Updated != 0 || f.callCount() != 1 {
		t.Fatalf("immediate rerun must find nothing due, got %+v after %d calls", sum, f.callCount())
	}
}

func TestForceBypassesStaleness(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1")
	f := &fakeFetcher{}
	orch := NewOrchestrator(s, f)

	if _, err := orch.Run(context.Background(), false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := orch.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if sum.Updated != 1 {
		t.Fatalf("force should refresh fresh records too, got %+v", sum)
	}
}

func TestOverlappingRunIsRejected(t *testing.T) {
	s, _ := setupRefreshTest(t, "p1")
	f := &fakeFetcher{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	orch := NewOrchestrator(s, f)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), false)
		done <- err
	}()

	<-f.started
	if _, err := orch.Run(context.Background(), false); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked for the overlapping run, got %v", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}
