package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/project-reconciler/internal/errors"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/types"
)

const projectKeyPrefix = "project"

// setIfNotOlderScript writes the entry unless the key already holds a
// higher version. Unreadable entries are overwritten.
var setIfNotOlderScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current then
		local ok, cached = pcall(cjson.decode, current)
		if ok and type(cached) == 'table' and tonumber(cached.version) and tonumber(cached.version) > tonumber(ARGV[2]) then
			return 0
		end
	end
	if tonumber(ARGV[3]) > 0 then
		redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
	else
		redis.call('SET', KEYS[1], ARGV[1])
	end
	return 1
`)

// cachedProject is the cached form of a record. The flattened document
// does not carry the version, so it travels alongside.
type cachedProject struct {
	Document types.Document `json:"document"`
	Version  int64          `json:"version"`
}

// ProjectCache is a read-through cache of project records keyed by uid.
type ProjectCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewProjectCache creates a new project cache
func NewProjectCache(redis *RedisCache, ttl time.Duration) *ProjectCache {
	return &ProjectCache{
		redis: redis,
		ttl:   ttl,
	}
}

// ProjectKey returns the cache key of a record.
// Format: project:<uid>
func ProjectKey(uid string) string {
	return projectKeyPrefix + ":" + strings.ToLower(strings.TrimSpace(uid))
}

// Get returns the cached record. found is false on a miss.
func (c *ProjectCache) Get(ctx context.Context, uid string) (p *models.Project, found bool, err error) {
	data, err := c.redis.Get(ctx, ProjectKey(uid))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewCacheError("get", err)
	}

	var cached cachedProject
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		// a corrupt entry is a miss; the caller will overwrite it
		return nil, false, nil
	}
	p, err = models.ProjectFromDocument(cached.Document)
	if err != nil {
		return nil, false, nil
	}
	p.Version = cached.Version
	return p, true, nil
}

// Set caches the record with the configured TTL. An entry holding a newer
// version is kept, so a reader that loaded the record before a concurrent
// write cannot put the old version back.
func (c *ProjectCache) Set(ctx context.Context, p *models.Project) error {
	data, err := json.Marshal(cachedProject{Document: p.Document(), Version: p.Version})
	if err != nil {
		return apperrors.NewCacheError("marshal", err)
	}
	keys := []string{ProjectKey(p.UID)}
	if err := setIfNotOlderScript.Run(ctx, c.redis.Client(), keys, string(data), p.Version, c.ttl.Milliseconds()).Err(); err != nil {
		return apperrors.NewCacheError("set", err)
	}
	return nil
}

// Invalidate drops the cached records.
func (c *ProjectCache) Invalidate(ctx context.Context, uids ...string) error {
	if len(uids) == 0 {
		return nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = ProjectKey(uid)
	}
	if err := c.redis.Del(ctx, keys...); err != nil {
		return apperrors.NewCacheError("invalidate", err)
	}
	return nil
}
