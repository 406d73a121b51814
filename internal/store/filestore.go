package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

const (
	POSTS_FILE    = "posted-log.json"
	PROFILES_FILE = "subreddit-profiles.json"
)

// FileStore keeps both collections as JSON arrays under a data directory,
// loaded fully and rewritten fully on each mutation. One mutex per
// collection serializes the read-modify-write cycle; the rewrite itself
// goes through a temp file and rename so a crash mid-write never leaves a
// half-written collection behind.
type FileStore struct {
	dir string

	postsMu    sync.Mutex
	profilesMu sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("[FileStore] failed to create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) postsPath() string    { return filepath.Join(s.dir, POSTS_FILE) }
func (s *FileStore) profilesPath() string { return filepath.Join(s.dir, PROFILES_FILE) }

func (s *FileStore) Append(ctx context.Context, rec models.PostRecord) (models.PostRecord, error) {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()

	recs, err := s.loadPosts()
	if err != nil {
		return models.PostRecord{}, err
	}
	for _, existing := range recs {
		if existing.URL == rec.URL {
			return models.PostRecord{}, fmt.Errorf("%w: %s", ErrDuplicateURL, rec.URL)
		}
	}
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	recs = append(recs, rec)
	if err := writeCollection(s.postsPath(), recs); err != nil {
		return models.PostRecord{}, err
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context) ([]models.PostRecord, error) {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()
	return s.loadPosts()
}

func (s *FileStore) UpdateMetrics(ctx context.Context, postID string, m models.PostMetrics, checkedAt time.Time) error {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()

	recs, err := s.loadPosts()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].PostID != postID {
			continue
		}
		score, ratio, comments := m.Score, m.UpvoteRatio, m.NumComments
		recs[i].Score = &score
		recs[i].UpvoteRatio = &ratio
		recs[i].NumComments = &comments
		checked := checkedAt
		recs[i].LastChecked = &checked
		if recs[i].Title == "" && m.Title != "" {
			recs[i].Title = m.Title
		}
		return writeCollection(s.postsPath(), recs)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, postID)
}

func (s *FileStore) MarkUnreachable(ctx context.Context, postID string) error {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()

	recs, err := s.loadPosts()
	if err != nil {
		return err
	}
	for i := range recs {
		if recs[i].PostID == postID {
			recs[i].Status = models.StatusUnreachable
			return writeCollection(s.postsPath(), recs)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, postID)
}

func (s *FileStore) UpsertProfile(ctx context.Context, p models.SubredditProfile) error {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	profiles, err := s.loadProfiles()
	if err != nil {
		return err
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}
	for i := range profiles {
		if profiles[i].Subreddit == p.Subreddit {
			profiles[i] = p
			return writeCollection(s.profilesPath(), profiles)
		}
	}
	profiles = append(profiles, p)
	return writeCollection(s.profilesPath(), profiles)
}

func (s *FileStore) Profiles(ctx context.Context) ([]models.SubredditProfile, error) {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()
	return s.loadProfiles()
}

// callers must hold postsMu
func (s *FileStore) loadPosts() ([]models.PostRecord, error) {
	var recs []models.PostRecord
	if err := readCollection(s.postsPath(), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// callers must hold profilesMu
func (s *FileStore) loadProfiles() ([]models.SubredditProfile, error) {
	var profiles []models.SubredditProfile
	if err := readCollection(s.profilesPath(), &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func readCollection(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("[FileStore] failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptStore, filepath.Base(path), err)
	}
	return nil
}

func writeCollection(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("[FileStore] failed to marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("[FileStore] failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("[FileStore] failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("[FileStore] failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("[FileStore] failed to replace %s: %w", path, err)
	}
	return nil
}
