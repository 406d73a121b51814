package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

var (
	valkeyInstance *ValkeyClient
	valkeyOnce     sync.Once
)

const (
	VALKEY_SYNC_LOCK_KEY = "karmatrack:sync_lock"
	VALKEY_REFRESHED_KEY = "karmatrack:refreshed_posts"
)

// ValkeyClient is the optional coordination cache. When configured it
// gives the refresh pass a cross-process lock and remembers which posts a
// recent pass already covered, so two overlapping invocations do not
// spend rate budget on the same records twice.
type ValkeyClient struct {
	Client valkey.Client
}

// ValkeyEnabled reports whether a Valkey address is configured at all.
func ValkeyEnabled() bool {
	return os.Getenv("VALKEY_INIT_ADDRESS") != ""
}

func InitValkey() *ValkeyClient {
	valkeyOnce.Do(func() {
		opts := valkey.ClientOption{
			InitAddress:      []string{os.Getenv("VALKEY_INIT_ADDRESS")},
			Password:         os.Getenv("VALKEY_PASSWORD"),
			ConnWriteTimeout: 5 * time.Second,
			SelectDB:         0,
		}
		if os.Getenv("VALKEY_TLS") == "true" {
			opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
		}

		client, err := valkey.NewClient(opts)
		if err != nil {
			panic(fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		defer cancel()

		if res := client.Do(ctx, client.B().Ping().Build()); res.Error() != nil {
			panic(fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", res.Error()))
		}

		slog.Info("[ValkeyClient] Successfully connected to valkey")
		valkeyInstance = &ValkeyClient{Client: client}
	})
	return valkeyInstance
}

func CloseValkey() {
	if valkeyInstance != nil {
		valkeyInstance.Client.Close()
	}
}

// AcquireSyncLock takes the cross-process refresh lock, reporting false
// when another pass holds it. The TTL guards against a crashed holder.
func (vc *ValkeyClient) AcquireSyncLock(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	res := vc.DoWithRetry(ctx, vc.Client.B().Setnx().Key(VALKEY_SYNC_LOCK_KEY).Value(owner).Build(), 3)
	if err := res.Error(); err != nil {
		return false, fmt.Errorf("[ValkeyClient] failed to take sync lock: %w", err)
	}
	acquired, err := res.AsBool()
	if err != nil || !acquired {
		return false, err
	}

	expire := vc.Client.B().Expire().Key(VALKEY_SYNC_LOCK_KEY).Seconds(int64(ttl.Seconds())).Build()
	if res := vc.DoWithRetry(ctx, expire, 3); res.Error() != nil {
		return true, res.Error()
	}
	return true, nil
}

func (vc *ValkeyClient) ReleaseSyncLock(ctx context.Context) {
	res := vc.DoWithRetry(ctx, vc.Client.B().Del().Key(VALKEY_SYNC_LOCK_KEY).Build(), 3)
	if res.Error() != nil {
		slog.Warn("[ValkeyClient] failed to release sync lock",
			slog.String("error", res.Error().Error()))
	}
}

// MarkRefreshed remembers a post covered by the current pass. The mark
// expires with the staleness threshold, after which the post is due again
// anyway.
func (vc *ValkeyClient) MarkRefreshed(ctx context.Context, postID string, ttl time.Duration) error {
	completed := []valkey.Completed{
		vc.Client.B().Sadd().Key(VALKEY_REFRESHED_KEY).Member(postID).Build(),
		vc.Client.B().Expire().Key(VALKEY_REFRESHED_KEY).Seconds(int64(ttl.Seconds())).Build(),
	}
	for _, res := range vc.DoMultiWithRetry(ctx, completed, 3) {
		if err := res.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (vc *ValkeyClient) WasRefreshed(ctx context.Context, postID string) bool {
	res := vc.DoWithRetry(ctx, vc.Client.B().Sismember().Key(VALKEY_REFRESHED_KEY).Member(postID).Build(), 3)
	ok, err := res.AsBool()
	if err != nil {
		return false
	}
	return ok
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, completed valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.Client.Do(ctx, completed)
		if result.Error() == nil || !isConnectionError(result.Error()) {
			break
		}
		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))
		time.Sleep(250 * time.Millisecond)
	}
	return result
}

func (vc *ValkeyClient) DoMultiWithRetry(ctx context.Context, completed []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		results = vc.Client.DoMulti(ctx, completed...)
		hasErr := false
		for _, r := range results {
			if r.Error() != nil && isConnectionError(r.Error()) {
				hasErr = true
				slog.Warn("[ValkeyClient] DoMulti failed",
					slog.Int("attempt", i+1),
					slog.String("error", r.Error().Error()))
				break
			}
		}
		if !hasErr {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	return results
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
