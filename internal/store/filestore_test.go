package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return s, dir
}

func testRecord(postID, url string) models.PostRecord {
	return models.PostRecord{
		PostID:    postID,
		URL:       url,
		Subreddit: "r/SideProject",
		Title:     "launch post",
		Angle:     models.AngleStory,
		PostedAt:  time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC),
		Status:    models.StatusActive,
	}
}

func TestAppendAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("abc123", "https://reddit.com/r/SideProject/comments/abc123/launch/")
	if _, err := s.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].URL != rec.URL {
		t.Errorf("expected url %q, got %q", rec.URL, recs[0].URL)
	}
	if recs[0].Score != nil {
		t.Errorf("expected nil score on a fresh record")
	}
}

func TestAppendRejectsDuplicateURL(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("abc123", "https://reddit.com/r/SideProject/comments/abc123/launch/")
	if _, err := s.Append(ctx, rec); err != nil {
		t.Fatalf("first append: %v", err)
	}

	dup := testRecord("other99", rec.URL)
	if _, err := s.Append(ctx, dup); !errors.Is(err, ErrDuplicateURL) {
		t.Fatalf("expected ErrDuplicateURL, got %v", err)
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("rejected append must leave the store unchanged, got %d records", len(recs))
	}
}

func TestAppendPersistsAcrossReopen(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecord("abc123", "https://reddit.com/r/a/comments/abc123/x/")); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(recs) != 1 || recs[0].PostID != "abc123" {
		t.Fatalf("expected the appended record to survive reopen, got %+v", recs)
	}
}

func TestUpdateMetrics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("abc123", "https://reddit.com/r/a/comments/abc123/x/")
	rec.Title = ""
	if _, err := s.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	checked := time.Date(2025, 7, 6, 9, 0, 0, 0, time.UTC)
	m := models.PostMetrics{Score: 42, UpvoteRatio: 0.93, NumComments: 7, Title: "fetched title"}
	if err := s.UpdateMetrics(ctx, "abc123", m, checked); err != nil {
		t.Fatalf("update metrics: %v", err)
	}

	recs, _ := s.List(ctx)
	got := recs[0]
	if got.Score == nil || *got.Score != 42 {
		t.Errorf("expected score 42, got %v", got.Score)
	}
	if got.NumComments == nil || *got.NumComments != 7 {
		t.Errorf("expected 7 comments, got %v", got.NumComments)
	}
	if got.UpvoteRatio == nil || *got.UpvoteRatio != 0.93 {
		t.Errorf("expected upvote ratio 0.93, got %v", got.UpvoteRatio)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(checked) {
		t.Errorf("expected last_checked %v, got %v", checked, got.LastChecked)
	}
	if got.Title != "fetched title" {
		t.Errorf("expected empty title to be filled, got %q", got.Title)
	}
	if !got.PostedAt.Equal(rec.PostedAt) {
		t.Errorf("posted_at must never change")
	}
}

func TestUpdateMetricsKeepsExistingTitle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecord("abc123", "https://reddit.com/r/a/comments/abc123/x/")); err != nil {
		t.Fatalf("append: %v", err)
	}
	m := models.PostMetrics{Score: 1, Title: "different title"}
	if err := s.UpdateMetrics(ctx, "abc123", m, time.Now().UTC()); err != nil {
		t.Fatalf("update metrics: %v", err)
	}

	recs, _ := s.List(ctx)
	if recs[0].Title != "launch post" {
		t.Errorf("existing title must be kept, got %q", recs[0].Title)
	}
}

func TestUpdateMetricsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateMetrics(context.Background(), "missing", models.PostMetrics{}, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkUnreachable(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecord("abc123", "https://reddit.com/r/a/comments/abc123/x/")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.MarkUnreachable(ctx, "abc123"); err != nil {
		t.Fatalf("mark unreachable: %v", err)
	}

	recs, _ := s.List(ctx)
	if recs[0].Status != models.StatusUnreachable {
		t.Errorf("expected unreachable status, got %q", recs[0].Status)
	}

	if err := s.MarkUnreachable(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestUpsertProfileReplacesByName(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := models.SubredditProfile{
		Subreddit:   "r/SideProject",
		Subscribers: 100,
		Activity:    "medium",
		BestAngle:   "mixed",
	}
	if err := s.UpsertProfile(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := first
	second.Subscribers = 250
	second.Notes = "prefers stories with numbers"
	if err := s.UpsertProfile(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	profiles, err := s.Profiles(ctx)
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected one profile per subreddit, got %d", len(profiles))
	}
	if profiles[0].Subscribers != 250 || profiles[0].Notes == "" {
		t.Errorf("later research must overwrite, got %+v", profiles[0])
	}
	if profiles[0].LastUpdated.IsZero() {
		t.Errorf("last_updated should be filled in")
	}
}

func TestCorruptStoreDetected(t *testing.T) {
	s, dir := newTestStore(t)

	if err := os.WriteFile(filepath.Join(dir, POSTS_FILE), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if _, err := s.List(context.Background()); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore, got %v", err)
	}

	// The corrupt content must still be there: detection never truncates.
	data, err := os.ReadFile(filepath.Join(dir, POSTS_FILE))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "{not json" {
		t.Errorf("corrupt file was modified: %q", data)
	}
}
