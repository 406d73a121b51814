package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spacesedan/karmatrack/internal/models"
)

var (
	// ErrRateLimited means the API throttled us past the single cooldown
	// retry. The caller decides whether the whole pass stops.
	ErrRateLimited = errors.New("reddit rate limited")
	// ErrPostNotFound means the content is gone upstream (deleted,
	// removed, or private). Retrying will not bring it back.
	ErrPostNotFound = errors.New("post not found upstream")
	// ErrTransient covers network blips and server errors; retry policy
	// for these lives in the caller, not here.
	ErrTransient = errors.New("transient network error")
)

var (
	redditClientInstance *RedditClient
	redditClientOnce     sync.Once
)

// RedditClient reads post and subreddit data. With credentials configured
// it goes through OAuth against oauth.reddit.com; otherwise it uses the
// public .json endpoints, which need no authentication at all. Every call
// is charged against the shared RateBudget before it leaves the process.
type RedditClient struct {
	Client   *http.Client
	Config   *clientcredentials.Config
	Budget   *RateBudget
	BaseURL  string
	Cooldown time.Duration

	mu sync.Mutex
}

func GetRedditClient() *RedditClient {
	redditClientOnce.Do(func() {
		perMinute := DEFAULT_CALLS_PER_MINUTE
		if v := os.Getenv("TRACKER_CALLS_PER_MINUTE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				perMinute = n
			}
		}

		rc := &RedditClient{
			Budget:   NewRateBudget(perMinute),
			BaseURL:  REDDIT_PUBLIC_URL,
			Cooldown: RATE_LIMIT_COOLDOWN,
		}

		clientID := os.Getenv("REDDIT_CLIENT_ID")
		clientSecret := os.Getenv("REDDIT_CLIENT_SECRET")
		if clientID != "" && clientSecret != "" {
			rc.Config = &clientcredentials.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenURL:     REDDIT_AUTH_URL,
				AuthStyle:    oauth2.AuthStyleInHeader,
			}
			rc.Client = rc.Config.Client(context.Background())
			rc.BaseURL = REDDIT_OAUTH_URL
			slog.Info("[RedditClient] Using authenticated OAuth client")
		} else {
			rc.Client = &http.Client{Timeout: REQUEST_TIMEOUT}
		}

		redditClientInstance = rc
	})
	return redditClientInstance
}

func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Client = rc.Config.Client(context.Background())
}

// FetchPostMetrics returns the current score, comment count and upvote
// ratio of one post. A post removed by moderation is reported as
// ErrPostNotFound even though the endpoint still answers 200.
func (rc *RedditClient) FetchPostMetrics(ctx context.Context, subreddit, postID string) (models.PostMetrics, error) {
	path := fmt.Sprintf("/r/%s/comments/%s.json", strings.TrimPrefix(subreddit, "r/"), postID)

	var listings []models.RedditListing
	if err := rc.getJSON(ctx, path, &listings); err != nil {
		return models.PostMetrics{}, err
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return models.PostMetrics{}, fmt.Errorf("%w: empty listing for %s", ErrTransient, postID)
	}

	post := listings[0].Data.Children[0].Data
	if post.RemovedByCategory != nil {
		return models.PostMetrics{}, fmt.Errorf("%w: %s removed (%s)", ErrPostNotFound, postID, *post.RemovedByCategory)
	}

	return models.PostMetrics{
		Score:       post.Score,
		UpvoteRatio: post.UpvoteRatio,
		NumComments: post.NumComments,
		Title:       post.Title,
	}, nil
}

// FetchSubredditInfo returns the community snapshot used for profile
// research.
func (rc *RedditClient) FetchSubredditInfo(ctx context.Context, name string) (models.SubredditInfo, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(name), "r/")

	var about models.SubredditAbout
	if err := rc.getJSON(ctx, fmt.Sprintf("/r/%s/about.json", clean), &about); err != nil {
		return models.SubredditInfo{}, err
	}

	d := about.Data
	submission := d.SubmissionType
	if submission == "" {
		submission = "any"
	}
	return models.SubredditInfo{
		Name:        "r/" + d.DisplayName,
		Subscribers: d.Subscribers,
		ActiveUsers: d.ActiveUserCount,
		Description: d.PublicDescription,
		Over18:      d.Over18,
		AllowText:   submission == "any" || submission == "self",
		AllowLink:   submission == "any" || submission == "link",
	}, nil
}

// FetchSubredditPosts lists recent posts of a community, for studying its
// style before drafting. sort is one of hot, new, top, rising.
func (rc *RedditClient) FetchSubredditPosts(ctx context.Context, name, sort string, limit int) ([]models.ListingPost, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(name), "r/")

	var listing models.RedditListing
	path := fmt.Sprintf("/r/%s/%s.json?limit=%d", clean, sort, limit)
	if err := rc.getJSON(ctx, path, &listing); err != nil {
		return nil, err
	}

	posts := make([]models.ListingPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		posts = append(posts, models.ListingPost{
			Title:       p.Title,
			Score:       p.Score,
			NumComments: p.NumComments,
			UpvoteRatio: p.UpvoteRatio,
			Flair:       p.LinkFlairText,
			IsSelf:      p.IsSelf,
			Permalink:   p.Permalink,
			CreatedUTC:  p.CreatedUTC,
		})
	}
	return posts, nil
}

func (rc *RedditClient) getJSON(ctx context.Context, path string, out any) error {
	refreshed := false
	rateRetried := false

	for {
		if rc.Budget != nil {
			if err := rc.Budget.Acquire(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrTransient, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.BaseURL+path, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		req.Header.Set("User-Agent", USER_AGENT)

		resp, err := rc.Client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: failed to parse response: %v", ErrTransient, err)
			}
			return nil

		case http.StatusUnauthorized:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if rc.Config != nil && !refreshed {
				slog.Warn("[RedditClient] Token expired - refreshing and retrying")
				refreshed = true
				rc.RefreshClient()
				continue
			}
			return fmt.Errorf("%w: unauthorized", ErrTransient)

		case http.StatusTooManyRequests:
			wait := retryAfter(resp, rc.cooldown())
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if rateRetried {
				return fmt.Errorf("%w: still throttled after cooldown", ErrRateLimited)
			}
			slog.Warn("[RedditClient] 429 Too Many Requests - waiting for cooldown",
				slog.Duration("cooldown", wait))
			rateRetried = true
			if err := sleepCtx(ctx, wait); err != nil {
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			continue

		case http.StatusNotFound, http.StatusForbidden:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%w: HTTP %d for %s", ErrPostNotFound, resp.StatusCode, path)

		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%w: HTTP %d for %s", ErrTransient, resp.StatusCode, path)
		}
	}
}

func (rc *RedditClient) cooldown() time.Duration {
	if rc.Cooldown > 0 {
		return rc.Cooldown
	}
	return RATE_LIMIT_COOLDOWN
}

// retryAfter honors the server's Retry-After hint but never waits longer
// than the fixed cooldown.
func retryAfter(resp *http.Response, max time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			if d := time.Duration(secs) * time.Second; d < max {
				return d
			}
		}
	}
	return max
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParsePostURL extracts the subreddit and post id from a Reddit permalink
// such as https://www.reddit.com/r/SideProject/comments/abc123/title/.
func ParsePostURL(raw string) (subreddit, postID string, err error) {
	clean := strings.SplitN(strings.TrimRight(raw, "/"), "?", 2)[0]
	parts := strings.Split(clean, "/")
	for i, p := range parts {
		if p == "comments" && i > 0 && i+1 < len(parts) {
			return parts[i-1], parts[i+1], nil
		}
	}
	return "", "", fmt.Errorf("cannot parse reddit post url: %s", raw)
}
