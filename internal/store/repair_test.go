package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

func TestRepairReinitializesUnparsableLog(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, POSTS_FILE)

	if err := os.WriteFile(path, []byte("[{truncated"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	res, err := s.RepairPosts(time.Date(2025, 7, 6, 10, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !res.Reinitialized {
		t.Errorf("expected reinitialization for unparsable content")
	}
	if res.BackupPath == "" {
		t.Fatalf("repair must back up before reinitializing")
	}

	backup, err := os.ReadFile(res.BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "[{truncated" {
		t.Errorf("backup must hold the original bytes, got %q", backup)
	}

	recs, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list after repair: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty collection after reinit, got %d records", len(recs))
	}
}

func TestRepairNormalizesLegacyEntries(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, POSTS_FILE)

	legacy := `[
  {"url": "https://reddit.com/r/SideProject/comments/abc123/launch/", "angle": "A", "status": "deleted"},
  {"post_id": "", "url": "", "angle": "B"}
]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	res, err := s.RepairPosts(time.Now().UTC())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if res.Kept != 1 || res.Dropped != 1 {
		t.Fatalf("expected 1 kept and 1 dropped, got %+v", res)
	}

	recs, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := recs[0]
	if got.PostID != "abc123" {
		t.Errorf("post_id should be recovered from the url, got %q", got.PostID)
	}
	if got.Subreddit != "r/SideProject" {
		t.Errorf("subreddit should be recovered from the url, got %q", got.Subreddit)
	}
	if got.Angle != models.AngleStory {
		t.Errorf("legacy angle A should map to story, got %q", got.Angle)
	}
	if got.Status != models.StatusUnreachable {
		t.Errorf("legacy status deleted should map to unreachable, got %q", got.Status)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecord("abc123", "https://reddit.com/r/a/comments/abc123/x/")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := s.RepairPosts(time.Date(2025, 7, 6, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("first repair: %v", err)
	}
	res, err := s.RepairPosts(time.Date(2025, 7, 6, 10, 0, 1, 0, time.UTC))
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if res.Kept != 1 || res.Dropped != 0 || res.Normalized != 0 {
		t.Errorf("healthy log should pass through unchanged, got %+v", res)
	}

	recs, _ := s.List(ctx)
	if len(recs) != 1 || recs[0].PostID != "abc123" {
		t.Errorf("records must survive repeated repair, got %+v", recs)
	}
}

func TestRepairCreatesMissingLog(t *testing.T) {
	s, dir := newTestStore(t)

	res, err := s.RepairPosts(time.Now().UTC())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if res.BackupPath != "" {
		t.Errorf("nothing to back up for a missing file")
	}

	data, err := os.ReadFile(filepath.Join(dir, POSTS_FILE))
	if err != nil {
		t.Fatalf("read created log: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		t.Errorf("expected an empty JSON array, got %q", data)
	}
}
