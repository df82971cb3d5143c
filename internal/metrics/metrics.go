package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000}

var (
	MaskBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_mask_builds_total",
		Help: "Mask/mosaic builds by layer and result (ok, fail)",
	}, []string{"layer", "result"})
	MaskBuildDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_mask_build_duration_ms",
		Help:    "Mask/mosaic build duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"layer"})
	DatasetFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_dataset_fetch_total",
		Help: "GeoJSON dataset fetches by dataset key and result",
	}, []string{"dataset", "result"})
	DatasetFetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_dataset_fetch_duration_ms",
		Help:    "GeoJSON dataset fetch+decode duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"dataset"})
	TileFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_tile_fetch_total",
		Help: "Elevation tile fetches by result",
	}, []string{"result"})
	PickRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_pick_requests_total",
		Help: "Total pick (3D point -> feature) requests",
	})
	PickHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_pick_hits_total",
		Help: "Pick results by kind (country, city) and outcome (hit, miss)",
	}, []string{"kind", "outcome"})
	PickCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_pick_cache_hits_total",
		Help: "Pick lookups answered from the point LRU",
	})
	PopulationLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_population_lookups_total",
		Help: "Population lookups by strategy and result",
	}, []string{"strategy", "result"})
	PopulationDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_population_duration_ms",
		Help:    "Population strategy duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"strategy"})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_redis_hits_total",
		Help: "Total redis cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_redis_misses_total",
		Help: "Total redis cache misses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globe_rate_limited_total",
		Help: "Requests rejected by the ingress rate limiter",
	})
	StaleCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_stale_commits_total",
		Help: "Build results discarded because their parameters were superseded",
	}, []string{"layer"})
)

func init() {
	prometheus.MustRegister(MaskBuildsTotal)
	prometheus.MustRegister(MaskBuildDurationMs)
	prometheus.MustRegister(DatasetFetchTotal)
	prometheus.MustRegister(DatasetFetchDurationMs)
	prometheus.MustRegister(TileFetchTotal)
	prometheus.MustRegister(PickRequestsTotal)
	prometheus.MustRegister(PickHitsTotal)
	prometheus.MustRegister(PickCacheHitsTotal)
	prometheus.MustRegister(PopulationLookupsTotal)
	prometheus.MustRegister(PopulationDurationMs)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(StaleCommitsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
