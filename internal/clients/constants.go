package clients

import "time"

const (
	REDDIT_PUBLIC_URL = "https://www.reddit.com"
	REDDIT_OAUTH_URL  = "https://oauth.reddit.com"
	REDDIT_AUTH_URL   = "https://www.reddit.com/api/v1/access_token"
	USER_AGENT        = "karmatrack/1.0 (personal use)"

	// One cooldown, one retry. A second 429 is reported to the caller
	// instead of being retried further.
	RATE_LIMIT_COOLDOWN = 60 * time.Second

	DEFAULT_CALLS_PER_MINUTE = 30
	REQUEST_TIMEOUT          = 15 * time.Second
)
