// 包 revgeo：拾取编排（三维点 → 经纬度 → 国家 + 最近城市）
package revgeo

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"globe-core/internal/cities"
	"globe-core/internal/countries"
	"globe-core/internal/logger"
	"globe-core/internal/metrics"
	"globe-core/internal/projection"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidPoint：零向量或非有限坐标，无法逆投影
var ErrInvalidPoint = errors.New("revgeo: point cannot be inverse projected")

// ElevationSource：按经纬度采样高程；ok=false 表示无数据
type ElevationSource func(lon, lat float64) (float64, bool)

// 文档注释：查询编排器（逆投影 → 缓存 → 国家 PIP ∥ 城市最近邻）
// 背景：国家与城市两个子查询互不依赖，并发执行；缓存键是精确的经纬度，只有同一点的重复拾取才命中（边界两侧相邻的点各自查询）。
// 约束：国家数据集加载失败向调用方返回错误；城市数据集失败只记日志并视为未命中。
type Orchestrator struct {
	countries *countries.Store
	cities    *cities.Store
	cache     *LRU[features]
	maxPickKm float64

	mu        sync.RWMutex
	elevation ElevationSource
}

// 构造编排器，读取环境变量作为参数
func NewOrchestrator(cs *countries.Store, ct *cities.Store) *Orchestrator {
	ttlSec := 3600
	if s := os.Getenv("REVERSE_GEO_CACHE_TTL_S"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			ttlSec = n
		}
	}
	r := cities.MaxPickKm
	if s := os.Getenv("CITY_MAX_PICK_KM"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f > 0 {
			r = f
		}
	}
	return &Orchestrator{
		countries: cs,
		cities:    ct,
		cache:     NewLRU[features](4096, time.Duration(ttlSec)*time.Second),
		maxPickKm: r,
	}
}

// SetElevation：挂接高程来源（新拼接图提交时替换）
func (o *Orchestrator) SetElevation(src ElevationSource) {
	o.mu.Lock()
	o.elevation = src
	o.mu.Unlock()
}

// Pick：三维局部坐标拾取
func (o *Orchestrator) Pick(ctx context.Context, p r3.Vector) (*Pick, error) {
	lon, lat, ok := projection.LocalToLonLat(p)
	if !ok {
		return nil, ErrInvalidPoint
	}
	return o.Locate(ctx, lon, lat)
}

// 文档注释：经纬度定位
// 返回：国家/城市未命中为 nil 字段，不是错误
func (o *Orchestrator) Locate(ctx context.Context, lon, lat float64) (*Pick, error) {
	metrics.PickRequestsTotal.Inc()
	lon = projection.NormalizeLon(lon)
	out := &Pick{Lon: lon, Lat: lat}

	key := pointKey(lon, lat)
	hit, cached := o.cache.Get(key)
	if cached {
		metrics.PickCacheHitsTotal.Inc()
	} else {
		var err error
		hit, err = o.lookup(ctx, lon, lat)
		if err != nil {
			return nil, err
		}
		o.cache.Set(key, hit)
	}

	out.Country = hit.country
	if hit.city != nil {
		c := *hit.city
		out.City = &c
	}
	countOutcome("country", out.Country != nil)
	countOutcome("city", out.City != nil)

	o.mu.RLock()
	elev := o.elevation
	o.mu.RUnlock()
	if elev != nil {
		if m, ok := elev(lon, lat); ok {
			out.Elevation = &m
		}
	}
	return out, nil
}

func pointKey(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
}

func (o *Orchestrator) lookup(ctx context.Context, lon, lat float64) (features, error) {
	var hit features
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := o.countries.FindAt(gctx, lon, lat)
		if err != nil {
			return err
		}
		if f != nil {
			hit.country = &CountryHit{Name: f.Name, ISO3: f.ISO3}
		}
		return nil
	})
	g.Go(func() error {
		ix, err := o.cities.Index(gctx)
		if err != nil {
			logger.L().Warn("pick_cities_unavailable", "err", err)
			return nil
		}
		if c, km := ix.NearestWithin(lat, lon, o.maxPickKm); c != nil {
			hit.city = &CityHit{Name: c.Name, ISO3: c.ISO3, Lon: c.Lon, Lat: c.Lat, Population: c.Pop, DistanceKm: km}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return features{}, err
	}
	return hit, nil
}

func countOutcome(kind string, ok bool) {
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	metrics.PickHitsTotal.WithLabelValues(kind, outcome).Inc()
}
