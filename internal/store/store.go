package store

import (
	"context"
	"errors"
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

var (
	// ErrDuplicateURL is returned by Append when the url is already logged.
	ErrDuplicateURL = errors.New("a record with this url already exists")
	// ErrNotFound is returned when a post id has no record.
	ErrNotFound = errors.New("record not found")
	// ErrCorruptStore is returned when a backing collection cannot be
	// parsed. The data is left in place; recovery goes through Repair.
	ErrCorruptStore = errors.New("store collection is corrupt")
)

// Store is the single owner of post records and subreddit profiles.
// Implementations must apply each mutation atomically: a reader never
// observes a partially updated record.
type Store interface {
	// Append persists a new record, rejecting duplicate urls.
	Append(ctx context.Context, rec models.PostRecord) (models.PostRecord, error)
	// List returns a snapshot of all records in insertion order.
	List(ctx context.Context) ([]models.PostRecord, error)
	// UpdateMetrics overwrites the metrics fields and last_checked of one
	// record. The title is filled in only when the record has none yet.
	UpdateMetrics(ctx context.Context, postID string, m models.PostMetrics, checkedAt time.Time) error
	// MarkUnreachable flags a record whose post was deleted upstream.
	MarkUnreachable(ctx context.Context, postID string) error
	// UpsertProfile stores a profile with replace-by-name semantics.
	UpsertProfile(ctx context.Context, p models.SubredditProfile) error
	// Profiles returns all stored subreddit profiles.
	Profiles(ctx context.Context) ([]models.SubredditProfile, error)
}
