package models

type RedditListing struct {
	Data RedditListingData `json:"data"`
}

type RedditListingData struct {
	After    string        `json:"after"`
	Children []RedditChild `json:"children"`
}

type RedditChild struct {
	Data RedditChildData `json:"data"`
}

type RedditChildData struct {
	Subreddit         string  `json:"subreddit"`
	Title             string  `json:"title"`
	Selftext          string  `json:"selftext"`
	Score             int     `json:"score"`
	UpvoteRatio       float64 `json:"upvote_ratio"`
	NumComments       int     `json:"num_comments"`
	LinkFlairText     string  `json:"link_flair_text"`
	IsSelf            bool    `json:"is_self"`
	Permalink         string  `json:"permalink"`
	CreatedUTC        float64 `json:"created_utc"`
	ID                string  `json:"id"`
	RemovedByCategory *string `json:"removed_by_category"`
}

type SubredditAbout struct {
	Data SubredditAboutData `json:"data"`
}

type SubredditAboutData struct {
	DisplayName       string `json:"display_name"`
	Subscribers       int    `json:"subscribers"`
	ActiveUserCount   int    `json:"active_user_count"`
	PublicDescription string `json:"public_description"`
	Over18            bool   `json:"over18"`
	SubmissionType    string `json:"submission_type"`
}
