package layers

import "sync"

// 文档注释：按参数键缓存的最新结果
// 背景：HTTP 层每个图层只保留最近一次参数的结果；参数相同的请求复用，参数变化开始新一代。
type Keyed[T any] struct {
	slot *Slot[T]
	mu   sync.Mutex
	key  string
	gen  Token
}

func NewKeyed[T any](name string) *Keyed[T] {
	return &Keyed[T]{slot: NewSlot[T](name)}
}

// Get：键一致且当前代已发布时直接返回
func (k *Keyed[T]) Get(key string) (T, bool) {
	k.mu.Lock()
	cur, gen := k.key, k.gen
	k.mu.Unlock()
	v, g, ok := k.slot.Load()
	if !ok || cur != key || g != gen {
		var zero T
		return zero, false
	}
	return v, true
}

// Begin：以新键开始一代构建
func (k *Keyed[T]) Begin(key string) Token {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.key = key
	k.gen = k.slot.Begin()
	return k.gen
}

// Commit：见 Slot.Commit
func (k *Keyed[T]) Commit(tok Token, v T) bool {
	return k.slot.Commit(tok, v)
}
