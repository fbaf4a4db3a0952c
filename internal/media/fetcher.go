package media

import (
	"context"
	"strings"
	"time"

	"feedsync/internal/cache"
	"feedsync/internal/observability"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL applies when a Fetcher is created without a TTL.
const DefaultTTL = 10 * time.Minute

// Downloader fetches raw media bytes by file id.
type Downloader interface {
	FetchMedia(ctx context.Context, fileID string) ([]byte, error)
}

// Fetcher reads stored media through a Redis cache-aside layer. A nil Redis
// client fetches directly.
type Fetcher struct {
	src Downloader
	rdb *redis.Client
	ttl time.Duration
}

// NewFetcher creates a fetcher.
func NewFetcher(src Downloader, rdb *redis.Client, ttl time.Duration) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Fetcher{src: src, rdb: rdb, ttl: ttl}
}

// CacheKey is the Redis key holding fileID.
func CacheKey(fileID string) string {
	return "feedsync:media:" + fileID
}

// FileID extracts the id from a media URL such as /api/posts/media/{id}.
func FileID(mediaURL string) string {
	mediaURL = strings.TrimRight(mediaURL, "/")
	if i := strings.LastIndexByte(mediaURL, '/'); i >= 0 {
		return mediaURL[i+1:]
	}
	return mediaURL
}

// Fetch returns the media bytes for fileID.
func (f *Fetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	data, hit, err := cache.Aside(ctx, f.rdb, CacheKey(fileID), f.ttl, func() ([]byte, error) {
		return f.src.FetchMedia(ctx, fileID)
	})
	if f.rdb != nil {
		switch {
		case err != nil:
			observability.MediaCacheResults.WithLabelValues("error").Inc()
		case hit:
			observability.MediaCacheResults.WithLabelValues("hit").Inc()
		default:
			observability.MediaCacheResults.WithLabelValues("miss").Inc()
		}
	}
	return data, err
}

// Invalidate drops fileID from the cache.
func (f *Fetcher) Invalidate(ctx context.Context, fileID string) error {
	if f.rdb == nil {
		return nil
	}
	return f.rdb.Del(ctx, CacheKey(fileID)).Err()
}
