package geodata

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// 文档注释：顺序回退
// 约束：按偏好顺序逐个尝试，首个成功即返回；全部失败返回最后一个错误（包装 ErrNoTier）
func (r *Registry) FirstAvailable(ctx context.Context, names ...string) (*geojson.FeatureCollection, string, error) {
	var last error = ErrNoTier
	for _, n := range names {
		fc, err := r.Collection(ctx, n)
		if err == nil {
			return fc, n, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", errorsJoinTier(last)
}

// 文档注释：并发拉取、全部落定后按偏好挑选
// 背景：水体掩膜同时请求各级数据，任一级失败不影响其他级；返回偏好顺序中第一个成功的
func (r *Registry) PreferSettled(ctx context.Context, names ...string) (*geojson.FeatureCollection, string, error) {
	type res struct {
		fc  *geojson.FeatureCollection
		err error
	}
	out := make([]res, len(names))
	var wg sync.WaitGroup
	for i, n := range names {
		wg.Add(1)
		go func(i int, n string) {
			defer wg.Done()
			fc, err := r.Collection(ctx, n)
			out[i] = res{fc: fc, err: err}
		}(i, n)
	}
	wg.Wait()
	var last error = ErrNoTier
	for i, o := range out {
		if o.err == nil && o.fc != nil {
			return o.fc, names[i], nil
		}
		if o.err != nil {
			last = o.err
		}
	}
	return nil, "", errorsJoinTier(last)
}

func errorsJoinTier(last error) error {
	if last == nil || errors.Is(last, ErrNoTier) {
		return ErrNoTier
	}
	return errors.Join(ErrNoTier, last)
}
