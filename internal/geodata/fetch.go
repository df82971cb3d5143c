// 包 geodata：Natural Earth 等 GeoJSON 数据集的拉取、分级回退与进程级缓存
package geodata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"

	"github.com/paulmach/orb/geojson"
)

// DefaultBaseURL：Natural Earth 矢量数据的 GeoJSON 目录
const DefaultBaseURL = "https://raw.githubusercontent.com/nvkelso/natural-earth-vector/master/geojson"

var (
	ErrStatus = errors.New("geodata: unexpected http status")
	ErrNoTier = errors.New("geodata: no dataset tier available")
)

// Resolution：Natural Earth 比例尺等级
type Resolution string

const (
	Res110m Resolution = "110m"
	Res50m  Resolution = "50m"
	Res10m  Resolution = "10m"
)

// 数据主题（文件名后缀）
const (
	ThemeLakes          = "lakes"
	ThemeRivers         = "rivers_lake_centerlines"
	ThemeBorders        = "admin_0_boundary_lines_land"
	ThemeCountries      = "admin_0_countries"
	ThemePopulatedPlace = "populated_places_simple"
)

// Name：主题与比例尺拼出数据集名，如 ne_50m_lakes
func Name(theme string, r Resolution) string { return "ne_" + string(r) + "_" + theme }

// Fetcher：按数据集名拉取并解析 GeoJSON FeatureCollection
type Fetcher struct {
	base   string
	client *http.Client
}

// NewFetcher：NE_BASE_URL 覆盖数据目录；client 为空时使用 HTTP_TIMEOUT_MS（默认 30s）超时的客户端
func NewFetcher(client *http.Client) *Fetcher {
	base := os.Getenv("NE_BASE_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return NewFetcherWithBase(client, base)
}

func NewFetcherWithBase(client *http.Client, base string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeoutFromEnv(30 * time.Second)}
	}
	return &Fetcher{base: strings.TrimRight(base, "/"), client: client}
}

// URL：数据集名 → 完整地址
func (f *Fetcher) URL(name string) string { return f.base + "/" + name + ".geojson" }

// 文档注释：拉取单个数据集
// 返回：非 2xx 包装为 ErrStatus；解析失败原样返回；不做重试
func (f *Fetcher) FetchCollection(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	t0 := time.Now()
	fc, err := f.fetch(ctx, name)
	metrics.DatasetFetchDurationMs.WithLabelValues(name).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.DatasetFetchTotal.WithLabelValues(name, "fail").Inc()
		logger.L().Debug("dataset_fetch_failed", "dataset", name, "err", err)
		return nil, err
	}
	metrics.DatasetFetchTotal.WithLabelValues(name, "ok").Inc()
	logger.L().Debug("dataset_fetch_ok", "dataset", name, "features", len(fc.Features), "ms", time.Since(t0).Milliseconds())
	return fc, nil
}

func (f *Fetcher) fetch(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(name), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %d", ErrStatus, name, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return fc, nil
}

func timeoutFromEnv(def time.Duration) time.Duration {
	if s := os.Getenv("HTTP_TIMEOUT_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
