package models

import "time"

// SubredditProfile is the research record for one community, keyed by the
// r/-prefixed name. Later research replaces the whole entry.
type SubredditProfile struct {
	Subreddit   string    `json:"subreddit"`
	Subscribers int       `json:"subscribers"`
	Activity    string    `json:"activity"`
	PromoRules  string    `json:"promo_rules"`
	BestAngle   string    `json:"best_angle"`
	Notes       string    `json:"notes"`
	LastUpdated time.Time `json:"last_updated"`
}

// SubredditInfo is the live about.json snapshot used to refresh a profile.
type SubredditInfo struct {
	Name        string
	Subscribers int
	ActiveUsers int
	Description string
	Over18      bool
	AllowText   bool
	AllowLink   bool
}

// ListingPost is one entry from a subreddit listing, fetched when
// researching a community's style.
type ListingPost struct {
	Title       string
	Score       int
	NumComments int
	UpvoteRatio float64
	Flair       string
	IsSelf      bool
	Permalink   string
	CreatedUTC  float64
}
