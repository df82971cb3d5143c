package geodata

import (
	"context"
	"sync"
	"time"

	"globe-core/internal/logger"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"
)

// 文档注释：进程级数据集登记表
// 背景：各数据集在进程生命周期内只成功加载一次；首次加载期间的并发请求共享同一次进行中的加载
// 约束：成功结果永久缓存、无淘汰；失败不落缓存，下一次请求会重新加载；由 main 构造一次后注入各构建器
type Registry struct {
	fetcher *Fetcher
	timeout time.Duration

	mu   sync.RWMutex
	done map[string]any
	sf   singleflight.Group
}

func NewRegistry(f *Fetcher) *Registry {
	return &Registry{fetcher: f, timeout: timeoutFromEnv(30 * time.Second) * 2, done: make(map[string]any)}
}

// 文档注释：按键懒加载任意派生数据
// 约束：共享加载与调用方上下文解耦（WithoutCancel + 超时），单个调用方取消只影响它自己的等待
func (r *Registry) Load(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	r.mu.RLock()
	v, ok := r.done[key]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}
	ch := r.sf.DoChan(key, func() (any, error) {
		r.mu.RLock()
		v, ok := r.done[key]
		r.mu.RUnlock()
		if ok {
			return v, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			logger.L().Warn("dataset_load_failed", "key", key, "err", err)
			return nil, err
		}
		r.mu.Lock()
		r.done[key] = v
		r.mu.Unlock()
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Collection：按数据集名获取 FeatureCollection（缓存）
func (r *Registry) Collection(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	v, err := r.Load(ctx, "fc:"+name, func(lctx context.Context) (any, error) {
		return r.fetcher.FetchCollection(lctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*geojson.FeatureCollection), nil
}

// Cached：仅查询是否已加载，不触发加载
func (r *Registry) Cached(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.done[key]
	return v, ok
}
