package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

// RepairResult summarizes one operator-invoked repair pass.
type RepairResult struct {
	BackupPath    string
	Kept          int
	Dropped       int
	Normalized    int
	Reinitialized bool
}

// RepairPosts is the explicit recovery path for the posts collection.
// An unparsable file is backed up and reinitialized to an empty
// collection; user data is never deleted without the backup. A parsable
// file is validated element by element: entries missing required fields
// are filled from the url where possible, legacy single-letter angles are
// mapped forward, and entries without a usable url are dropped. Running
// it again on a healthy file is a no-op apart from the backup.
func (s *FileStore) RepairPosts(now time.Time) (RepairResult, error) {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()

	var res RepairResult
	path := s.postsPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("[Repair] posts collection missing, creating empty file")
		return res, writeCollection(path, []models.PostRecord{})
	}
	if err != nil {
		return res, fmt.Errorf("[Repair] failed to read %s: %w", path, err)
	}

	backup := fmt.Sprintf("%s.backup-%s", path, now.Format("20060102-150405"))
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return res, fmt.Errorf("[Repair] failed to back up %s: %w", path, err)
	}
	res.BackupPath = backup

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("[Repair] posts collection unparsable, reinitializing",
			slog.String("backup", backup),
			slog.String("error", err.Error()))
		res.Reinitialized = true
		return res, writeCollection(path, []models.PostRecord{})
	}

	recs := make([]models.PostRecord, 0, len(raw))
	for i, entry := range raw {
		rec, changed, ok := normalizeEntry(entry, now)
		if !ok {
			slog.Warn("[Repair] dropping unrecoverable entry", slog.Int("index", i))
			res.Dropped++
			continue
		}
		if changed {
			res.Normalized++
		}
		recs = append(recs, rec)
	}
	res.Kept = len(recs)

	if err := writeCollection(path, recs); err != nil {
		return res, err
	}
	slog.Info("[Repair] posts collection rebuilt",
		slog.Int("kept", res.Kept),
		slog.Int("dropped", res.Dropped),
		slog.Int("normalized", res.Normalized))
	return res, nil
}

func normalizeEntry(entry map[string]any, now time.Time) (models.PostRecord, bool, bool) {
	data, err := json.Marshal(entry)
	if err != nil {
		return models.PostRecord{}, false, false
	}

	var rec models.PostRecord
	changed := false
	if err := json.Unmarshal(data, &rec); err != nil {
		// Field-level type damage: recover what loosely parses.
		rec = models.PostRecord{}
		rec.URL, _ = entry["url"].(string)
		rec.PostID, _ = entry["post_id"].(string)
		rec.Subreddit, _ = entry["subreddit"].(string)
		rec.Title, _ = entry["title"].(string)
		changed = true
	}

	if rec.URL == "" {
		return models.PostRecord{}, false, false
	}
	if rec.PostID == "" || rec.Subreddit == "" {
		sub, id := idFromURL(rec.URL)
		if rec.PostID == "" && id != "" {
			rec.PostID = id
			changed = true
		}
		if rec.Subreddit == "" && sub != "" {
			rec.Subreddit = "r/" + sub
			changed = true
		}
	}
	if rec.PostID == "" {
		return models.PostRecord{}, false, false
	}
	if angle, err := models.ParseAngle(string(rec.Angle)); err != nil {
		rec.Angle = models.AngleStory
		changed = true
	} else if angle != rec.Angle {
		rec.Angle = angle
		changed = true
	}
	if rec.Status != models.StatusActive && rec.Status != models.StatusUnreachable {
		// The legacy log used status "deleted" for removed posts.
		if strings.EqualFold(string(rec.Status), "deleted") {
			rec.Status = models.StatusUnreachable
		} else {
			rec.Status = models.StatusActive
		}
		changed = true
	}
	if rec.PostedAt.IsZero() {
		rec.PostedAt = now
		changed = true
	}
	return rec, changed, true
}

func idFromURL(url string) (subreddit, postID string) {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	for i, p := range parts {
		if p == "comments" && i > 0 && i+1 < len(parts) {
			return parts[i-1], parts[i+1]
		}
	}
	return "", ""
}
