// 包 layers：异步构建结果的代际槽位
package layers

import (
	"sync"
	"sync/atomic"

	"globe-core/internal/metrics"
)

// Token：Begin 发放的代际号
type Token uint64

type entry[T any] struct {
	gen   Token
	value T
}

// 文档注释：代际槽位
// 背景：参数变化会触发新的构建，旧构建仍可能在之后完成；只有最新一代的结果允许发布，读路径通过 atomic.Value 无锁读取。
// 约束：Commit 与 Begin 的比较在互斥锁内完成；过期提交丢弃并计数，对读者不可见。
type Slot[T any] struct {
	name string
	next atomic.Uint64
	mu   sync.Mutex
	cur  atomic.Value // entry[T]
}

func NewSlot[T any](name string) *Slot[T] {
	return &Slot[T]{name: name}
}

// Begin：开始新一代构建；之前发放的 token 全部作废
func (s *Slot[T]) Begin() Token {
	return Token(s.next.Add(1))
}

// Current：最近一次 Begin 的代际号
func (s *Slot[T]) Current() Token {
	return Token(s.next.Load())
}

// 文档注释：提交结果
// 返回：token 仍是最新一代时发布并返回 true；否则丢弃返回 false
func (s *Slot[T]) Commit(tok Token, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != Token(s.next.Load()) {
		metrics.StaleCommitsTotal.WithLabelValues(s.name).Inc()
		return false
	}
	s.cur.Store(entry[T]{gen: tok, value: v})
	return true
}

// Load：当前已发布的值；尚无发布时 ok=false
func (s *Slot[T]) Load() (T, Token, bool) {
	x := s.cur.Load()
	if x == nil {
		var zero T
		return zero, 0, false
	}
	e := x.(entry[T])
	return e.value, e.gen, true
}
