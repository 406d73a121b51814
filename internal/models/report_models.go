package models

import "time"

// ReportRow is one post summarized for the report table. Pending is set
// when the post has been logged but never successfully fetched.
type ReportRow struct {
	Title       string     `json:"title"`
	Subreddit   string     `json:"subreddit"`
	Angle       Angle      `json:"angle"`
	Score       *int       `json:"score"`
	NumComments *int       `json:"num_comments"`
	UpvoteRatio *float64   `json:"upvote_ratio"`
	PostedAt    time.Time  `json:"posted_at"`
	Pending     bool       `json:"pending"`
}

// AngleSentiment is the average VADER sentiment over the titles posted
// with one angle.
type AngleSentiment struct {
	Angle Angle   `json:"angle"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Insights holds the derived figures of a report. Fields are only
// meaningful when the corresponding Has* flag (or count) says so — a month
// with a single angle has no best/worst angle comparison.
type Insights struct {
	BestSubreddit      string           `json:"best_subreddit"`
	BestSubredditAvg   float64          `json:"best_subreddit_avg"`
	BestSubredditPosts int              `json:"best_subreddit_posts"`
	BestAngle          Angle            `json:"best_angle"`
	BestAngleAvg       float64          `json:"best_angle_avg"`
	WorstAngle         Angle            `json:"worst_angle"`
	WorstAngleAvg      float64          `json:"worst_angle_avg"`
	HasAngleComparison bool             `json:"has_angle_comparison"`
	BestWeekday        time.Weekday     `json:"best_weekday"`
	BestWeekdayAvg     float64          `json:"best_weekday_avg"`
	TopPost            ReportRow        `json:"top_post"`
	AvgScore           float64          `json:"avg_score"`
	AvgComments        float64          `json:"avg_comments"`
	AvgUpvoteRatio     float64          `json:"avg_upvote_ratio"`
	TitleSentiment     []AngleSentiment `json:"title_sentiment"`
}

// Report is the comparable content for one period. The generated-at stamp
// deliberately lives outside of it, in ReportMeta, so regenerating from
// identical inputs yields identical bytes.
type Report struct {
	Period          string      `json:"period"`
	Rows            []ReportRow `json:"rows"`
	Scored          int         `json:"scored"`
	Insights        Insights    `json:"insights"`
	Recommendations []string    `json:"recommendations"`
}

type ReportMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	Records     int       `json:"records"`
	Pending     int       `json:"pending"`
}
