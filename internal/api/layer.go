package api

import (
	"context"
	"errors"
	"time"

	"globe-core/internal/layers"

	"golang.org/x/sync/singleflight"
)

// errNoData：构建结束但没有结果（数据集全部加载失败）
var errNoData = errors.New("api: layer has no data")

const buildTimeout = 2 * time.Minute

// 文档注释：单个图层的最近一次结果
// 背景：同参数的并发请求合并为一次构建；参数变化开始新一代，旧构建晚到的结果被槽位丢弃，但仍返回给发起它的请求。
// 约束：构建脱离请求的取消信号，只受 buildTimeout 约束；失败和空结果不发布，下次请求重试。
type layer[T any] struct {
	slot     *layers.Keyed[T]
	sf       singleflight.Group
	onCommit func(T)
}

func newLayer[T any](name string) *layer[T] {
	return &layer[T]{slot: layers.NewKeyed[T](name)}
}

func (l *layer[T]) get(ctx context.Context, key string, build func(context.Context) (T, error)) (T, error) {
	if v, ok := l.slot.Get(key); ok {
		return v, nil
	}
	ch := l.sf.DoChan(key, func() (any, error) {
		if v, ok := l.slot.Get(key); ok {
			return v, nil
		}
		tok := l.slot.Begin(key)
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		v, err := build(bctx)
		if err != nil {
			return nil, err
		}
		if l.slot.Commit(tok, v) && l.onCommit != nil {
			l.onCommit(v)
		}
		return v, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}
