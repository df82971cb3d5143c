package population

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// 文档注释：两级缓存（进程内 map + 可选 Redis）
// 背景：进程内只增不删，未命中结果同样写入，避免对同一键反复打上游；Redis 用于多实例共享与重启后复用。
// 约束：并发写入后写者胜；Redis 读写失败只记日志，不影响主流程。
type Memo[V any] struct {
	prefix string
	rc     *redis.Client
	ttl    time.Duration

	mu sync.RWMutex
	m  map[string]V
}

// NewMemo：rc 为 nil 时仅使用进程内缓存
func NewMemo[V any](prefix string, rc *redis.Client, ttl time.Duration) *Memo[V] {
	return &Memo[V]{prefix: prefix, rc: rc, ttl: ttl, m: make(map[string]V)}
}

// CacheTTLFromEnv：POP_CACHE_TTL_S，默认 7 天
func CacheTTLFromEnv() time.Duration {
	sec := 7 * 24 * 3600
	if s := os.Getenv("POP_CACHE_TTL_S"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			sec = n
		}
	}
	return time.Duration(sec) * time.Second
}

func (c *Memo[V]) Get(ctx context.Context, k string) (V, bool) {
	c.mu.RLock()
	v, ok := c.m[k]
	c.mu.RUnlock()
	if ok || c.rc == nil {
		return v, ok
	}
	s, err := c.rc.Get(ctx, c.prefix+k).Result()
	if err != nil {
		if err != redis.Nil {
			logger.For("population").Debug("pop_cache_redis_get_failed", "key", c.prefix+k, "err", err)
		}
		metrics.RedisMissesTotal.Inc()
		return v, false
	}
	if e := json.Unmarshal([]byte(s), &v); e != nil {
		metrics.RedisMissesTotal.Inc()
		return v, false
	}
	metrics.RedisHitsTotal.Inc()
	c.mu.Lock()
	c.m[k] = v
	c.mu.Unlock()
	return v, true
}

func (c *Memo[V]) Set(ctx context.Context, k string, v V) {
	c.mu.Lock()
	c.m[k] = v
	c.mu.Unlock()
	if c.rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, c.prefix+k, string(b), c.ttl).Err(); err != nil {
		logger.For("population").Debug("pop_cache_redis_set_failed", "key", c.prefix+k, "err", err)
	}
}

// Len：进程内条目数
func (c *Memo[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
