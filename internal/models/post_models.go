package models

import (
	"fmt"
	"strings"
	"time"
)

// Angle is the framing of a post. The fixed vocabulary matters for
// aggregation: reports compare average performance per angle.
type Angle string

const (
	AngleStory    Angle = "story"
	AngleFeedback Angle = "feedback"
	AngleValue    Angle = "value"
)

// ParseAngle accepts the canonical names plus the legacy single-letter
// codes found in older logs.
func ParseAngle(s string) (Angle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "story", "a":
		return AngleStory, nil
	case "feedback", "b":
		return AngleFeedback, nil
	case "value", "insight", "c":
		return AngleValue, nil
	}
	return "", fmt.Errorf("invalid angle %q (must be story, feedback or value)", s)
}

type PostStatus string

const (
	StatusActive PostStatus = "active"
	// StatusUnreachable marks posts deleted or removed upstream; they are
	// excluded from staleness checks so sync stops retrying them.
	StatusUnreachable PostStatus = "unreachable"
)

// PostRecord is one logged Reddit post. Metrics fields are pointers so a
// freshly logged post is distinguishable from one that scored zero.
type PostRecord struct {
	PostID      string     `json:"post_id"`
	URL         string     `json:"url"`
	Subreddit   string     `json:"subreddit"`
	Title       string     `json:"title"`
	Angle       Angle      `json:"angle"`
	DraftFile   string     `json:"draft_file,omitempty"`
	PostedAt    time.Time  `json:"posted_at"`
	Score       *int       `json:"score"`
	UpvoteRatio *float64   `json:"upvote_ratio"`
	NumComments *int       `json:"num_comments"`
	LastChecked *time.Time `json:"last_checked"`
	Status      PostStatus `json:"status"`
}

// PostMetrics is what a single fetch against the Reddit API yields.
type PostMetrics struct {
	Score       int
	UpvoteRatio float64
	NumComments int
	Title       string
}
