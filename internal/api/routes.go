// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"

	"globe-core/internal/borders"
	"globe-core/internal/cities"
	"globe-core/internal/logger"
	"globe-core/internal/population"
	"globe-core/internal/revgeo"
	"globe-core/internal/terrain"
	"globe-core/internal/viewpoint"
	"globe-core/internal/water"
)

// 文档注释：路由依赖
// 约束：Population 与 Viewpoint 可为 nil（对应接口降级：人口字段为空 / 视点返回 404）
type Deps struct {
	Terrain    *terrain.Builder
	Water      *water.Builder
	Borders    *borders.Builder
	Cities     *cities.Store
	Pick       *revgeo.Orchestrator
	Population *population.Service
	Viewpoint  *viewpoint.Locator
}

type server struct {
	d Deps

	terrain *layer[*terrain.Mosaic]
	water   *layer[*image.NRGBA]
	borders *layer[*image.Alpha]
	cities  *layer[*image.Alpha]
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{
		d:       d,
		terrain: newLayer[*terrain.Mosaic]("terrain"),
		water:   newLayer[*image.NRGBA]("water"),
		borders: newLayer[*image.Alpha]("borders"),
		cities:  newLayer[*image.Alpha]("cities"),
	}
	// 新的高程拼接图发布后，拾取结果带上该图的高程
	if d.Pick != nil {
		s.terrain.onCommit = func(m *terrain.Mosaic) { d.Pick.SetElevation(m.ElevationAt) }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/terrain.png", s.handleTerrain)
	mux.HandleFunc("/water.png", s.handleWater)
	mux.HandleFunc("/borders.png", s.handleBorders)
	mux.HandleFunc("/cities.png", s.handleCities)
	mux.HandleFunc("/pick", s.handlePick)
	mux.HandleFunc("/country", s.handleCountry)
	mux.HandleFunc("/city", s.handleCity)
	mux.HandleFunc("/sun", handleSun)
	mux.HandleFunc("/viewpoint", s.handleViewpoint)
	return mux
}

func (s *server) handleTerrain(w http.ResponseWriter, r *http.Request) {
	z := maskZoom(r.URL.Query())
	m, err := s.terrain.get(r.Context(), fmt.Sprintf("z=%d", z), func(ctx context.Context) (*terrain.Mosaic, error) {
		return s.d.Terrain.Build(ctx, z)
	})
	if err != nil {
		writeBuildError(w, "terrain", err)
		return
	}
	h := w.Header()
	h.Set("x-mosaic-width", strconv.Itoa(m.Width))
	h.Set("x-mosaic-height", strconv.Itoa(m.Height))
	h.Set("x-texture-filter", string(m.Filter))
	h.Set("x-missing-tiles", strconv.Itoa(len(m.Missing)))
	writePNG(w, m.Image)
}

func (s *server) handleWater(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := water.DefaultParams(maskZoom(q))
	p.RiverWidthFactor = clampFloat(queryFloat(q, "river", p.RiverWidthFactor), 0, 10)
	p.LakeErodePx = clampFloat(queryFloat(q, "erode", p.LakeErodePx), 0, 10)
	key := fmt.Sprintf("z=%d&river=%g&erode=%g", p.Zoom, p.RiverWidthFactor, p.LakeErodePx)
	img, err := s.water.get(r.Context(), key, func(ctx context.Context) (*image.NRGBA, error) {
		if m := s.d.Water.Build(ctx, p); m != nil {
			return m, nil
		}
		return nil, errNoData
	})
	if err != nil {
		writeBuildError(w, "water", err)
		return
	}
	writePNG(w, img)
}

func (s *server) handleBorders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := borders.DefaultParams(maskZoom(q))
	p.WidthPx = clampFloat(queryFloat(q, "width", p.WidthPx), 0, 20)
	p.Alpha = clampFloat(queryFloat(q, "alpha", p.Alpha), 0, 1)
	key := fmt.Sprintf("z=%d&width=%g&alpha=%g", p.Zoom, p.WidthPx, p.Alpha)
	img, err := s.borders.get(r.Context(), key, func(ctx context.Context) (*image.Alpha, error) {
		if m := s.d.Borders.Build(ctx, p); m != nil {
			return m, nil
		}
		return nil, errNoData
	})
	if err != nil {
		writeBuildError(w, "borders", err)
		return
	}
	writePNG(w, img)
}

func (s *server) handleCities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := cities.DefaultMaskParams()
	p.Threshold = clampFloat(queryFloat(q, "threshold", p.Threshold), 0, 1e9)
	p.Size = clampInt(queryInt(q, "size", p.Size), 256, 8192)
	p.PxPerDot = clampFloat(queryFloat(q, "dot", p.PxPerDot), 0, 20)
	key := fmt.Sprintf("threshold=%g&size=%d&dot=%g", p.Threshold, p.Size, p.PxPerDot)
	img, err := s.cities.get(r.Context(), key, func(ctx context.Context) (*image.Alpha, error) {
		cs, err := s.d.Cities.Load(ctx)
		if err != nil {
			logger.L().Warn("cities_build_failed", "err", err)
			return nil, errNoData
		}
		return cities.BuildMask(cs, p), nil
	})
	if err != nil {
		writeBuildError(w, "cities", err)
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("content-type", "image/png")
	w.Header().Set("cache-control", "no-store")
	if err := terrain.EncodePNG(w, img); err != nil {
		logger.L().Debug("png_write_failed", "err", err)
	}
}

// 空结果 204；请求被取消不写响应；其余 503
func writeBuildError(w http.ResponseWriter, layer string, err error) {
	switch {
	case errors.Is(err, errNoData):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, context.Canceled):
	default:
		logger.L().Warn("layer_request_failed", "layer", layer, "err", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, http.StatusOK, v) }

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
