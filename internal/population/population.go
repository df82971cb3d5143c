// 包 population：国家与城市人口查询（World Bank / Wikipedia / Wikidata）
package population

import (
	"context"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"
)

// 文档注释：人口结果
// 背景：上游经常只给数值不给年份；未命中时 Value 为 nil，也会被缓存。
type Population struct {
	Value  *float64 `json:"value"`
	Year   *int     `json:"year"`
	Source string   `json:"source,omitempty"`
	QID    string   `json:"qid,omitempty"`
}

// Found：是否拿到数值
func (p Population) Found() bool { return p.Value != nil }

// CountryQuery：国家人口查询条件
type CountryQuery struct {
	ISO3 string
	Name string
}

// CityQuery：城市人口查询条件（名称 + 所属国 + 坐标 + 搜索半径）
type CityQuery struct {
	Name     string
	ISO3     string
	Lat      float64
	Lon      float64
	RadiusKm float64
}

// Strategy：单一查询策略；ok=false 时交给链上的下一个策略
type Strategy[Q any] interface {
	Name() string
	Resolve(ctx context.Context, q Q) (Population, bool)
}

// 文档注释：策略链
// 背景：按顺序尝试，第一个成功的结果胜出；nil 策略跳过。
// 约束：每个策略的耗时与结果计入 globe_population_* 指标。
type Chain[Q any] struct {
	list []Strategy[Q]
}

func NewChain[Q any](list ...Strategy[Q]) *Chain[Q] {
	return &Chain[Q]{list: list}
}

func (c *Chain[Q]) Resolve(ctx context.Context, q Q) (Population, bool) {
	for _, s := range c.list {
		if s == nil {
			continue
		}
		if ctx.Err() != nil {
			return Population{}, false
		}
		start := time.Now()
		p, ok := s.Resolve(ctx, q)
		metrics.PopulationDurationMs.WithLabelValues(s.Name()).Observe(float64(time.Since(start).Milliseconds()))
		if ok {
			metrics.PopulationLookupsTotal.WithLabelValues(s.Name(), "hit").Inc()
			if p.Source == "" {
				p.Source = s.Name()
			}
			return p, true
		}
		metrics.PopulationLookupsTotal.WithLabelValues(s.Name(), "miss").Inc()
		logger.For("population").Debug("population_strategy_miss", "strategy", s.Name())
	}
	return Population{}, false
}

type funcStrategy[Q any] struct {
	name string
	fn   func(context.Context, Q) (Population, bool)
}

func (f funcStrategy[Q]) Name() string { return f.name }

func (f funcStrategy[Q]) Resolve(ctx context.Context, q Q) (Population, bool) { return f.fn(ctx, q) }

// Func：把函数包装成具名策略
func Func[Q any](name string, fn func(context.Context, Q) (Population, bool)) Strategy[Q] {
	return funcStrategy[Q]{name: name, fn: fn}
}
