// 包 water：湖泊（R）与河流（G）双通道掩膜
package water

import (
	"context"
	"image"
	"image/color"
	"math"
	"time"

	"globe-core/internal/geodata"
	"globe-core/internal/logger"
	"globe-core/internal/metrics"
	"globe-core/internal/projection"
	"globe-core/internal/raster"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"
)

var (
	lakeColor  = color.NRGBA{R: 255, A: 255}
	riverColor = color.NRGBA{G: 255, A: 255}
)

// Params：掩膜参数；宽高为 0 时取 256·2^Zoom（与高程拼接图一致）
type Params struct {
	Zoom             int
	Width, Height    int
	RiverWidthFactor float64
	LakeErodePx      float64
}

func DefaultParams(z int) Params {
	return Params{Zoom: z, RiverWidthFactor: 1.0, LakeErodePx: 0.6}
}

func (p Params) size() (int, int) {
	w, h := p.Width, p.Height
	if w <= 0 || h <= 0 {
		w = 256 << clampZoom(p.Zoom)
		h = w
	}
	return w, h
}

type Builder struct {
	reg *geodata.Registry
}

func NewBuilder(reg *geodata.Registry) *Builder { return &Builder{reg: reg} }

// tiers：偏好顺序（细 → 粗）；z ≥ 3 时才尝试 10m
func tiers(theme string, z int) []string {
	names := make([]string, 0, 3)
	if z >= 3 {
		names = append(names, geodata.Name(theme, geodata.Res10m))
	}
	return append(names, geodata.Name(theme, geodata.Res50m), geodata.Name(theme, geodata.Res110m))
}

// 文档注释：构建水体掩膜
// 背景：湖泊与河流各自并发拉取全部等级，落定后按偏好取最细的一级；一类全部失败只跳过这一类
// 约束：两类都拿不到数据或 ctx 取消时返回 nil，错误只记日志，不向调用方传播
func (b *Builder) Build(ctx context.Context, p Params) *image.NRGBA {
	t0 := time.Now()
	var lakes, rivers *geojson.FeatureCollection
	var g errgroup.Group
	g.Go(func() error {
		fc, name, err := b.reg.PreferSettled(ctx, tiers(geodata.ThemeLakes, p.Zoom)...)
		if err != nil {
			logger.L().Warn("water_lakes_unavailable", "err", err)
			return nil
		}
		logger.L().Debug("water_lakes_tier", "dataset", name)
		lakes = fc
		return nil
	})
	g.Go(func() error {
		fc, name, err := b.reg.PreferSettled(ctx, tiers(geodata.ThemeRivers, p.Zoom)...)
		if err != nil {
			logger.L().Warn("water_rivers_unavailable", "err", err)
			return nil
		}
		logger.L().Debug("water_rivers_tier", "dataset", name)
		rivers = fc
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil || (lakes == nil && rivers == nil) {
		metrics.MaskBuildsTotal.WithLabelValues("water", "fail").Inc()
		logger.L().Warn("water_build_failed", "z", p.Zoom, "ctx_err", ctx.Err())
		return nil
	}

	w, h := p.size()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if lakes != nil {
		drawLakes(dst, lakes, p)
	}
	if rivers != nil {
		drawRivers(dst, rivers, p)
	}
	metrics.MaskBuildsTotal.WithLabelValues("water", "ok").Inc()
	metrics.MaskBuildDurationMs.WithLabelValues("water").Observe(float64(time.Since(t0).Milliseconds()))
	logger.L().Info("water_build_ok", "z", p.Zoom, "w", w, "h", h, "ms", time.Since(t0).Milliseconds())
	return dst
}

// LakeErodeWidth：侵蚀描边宽度
func LakeErodeWidth(w int, erodePx float64) float64 {
	return math.Max(0.4, float64(w)/4096*erodePx)
}

// 湖泊：先整体填充 R，再沿每个环描边做 destination-out 向内收缩
func drawLakes(dst *image.NRGBA, fc *geojson.FeatureCollection, p Params) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	proj := raster.Mercator(w, h)
	fill := raster.NewFiller(w, h, proj)
	for _, f := range fc.Features {
		for _, poly := range geodata.Polygons(f.Geometry) {
			fill.FillPolygon(poly)
		}
	}
	raster.SourceOver(dst, fill.Coverage(), lakeColor)

	erode := raster.NewStroker(w, h, proj)
	erode.SetWidth(LakeErodeWidth(w, p.LakeErodePx))
	for _, f := range fc.Features {
		for _, poly := range geodata.Polygons(f.Geometry) {
			erode.StrokeRings(poly)
		}
	}
	raster.DestinationOut(dst, erode.Mask())
}

// RiverBaseWidth：河流基础线宽
func RiverBaseWidth(w int, factor float64) float64 {
	return math.Max(0.01, float64(w)/4096*0.06) * math.Max(0.02, factor)
}

// RiverSegmentWidth：按段中点纬度缩放，高纬更细，系数下限 0.40
func RiverSegmentWidth(base, lat0, lat1 float64) float64 {
	scale := math.Max(0.40, math.Cos(projection.DegToRad((lat0+lat1)*0.5)))
	return math.Max(0.01, base*scale)
}

// RiverMinPix：相邻保留顶点的最小像素间距
func RiverMinPix(w int) float64 { return math.Max(3.0, float64(w)/1200) }

func drawRivers(dst *image.NRGBA, fc *geojson.FeatureCollection, p Params) {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	s := raster.NewStroker(w, h, raster.Mercator(w, h))
	base := RiverBaseWidth(w, p.RiverWidthFactor)
	minPix := RiverMinPix(w)
	for _, f := range fc.Features {
		for _, ls := range geodata.Lines(f.Geometry) {
			strokeRiver(s, ls, base, minPix)
		}
	}
	raster.SourceOver(dst, s.Mask(), riverColor)
}

// 文档注释：单条河流描边
// 背景：距上一个保留顶点不足 minPix 的顶点被跳过，宽度只在保留的段上重新计算；每段用自己的宽度描边
func strokeRiver(s *raster.Stroker, ls orb.LineString, base, minPix float64) {
	for _, seg := range riverSegments(s.Project, ls, minPix) {
		s.Segment(seg.x0, seg.y0, seg.x1, seg.y1, RiverSegmentWidth(base, seg.lat0, seg.lat1))
	}
}

type segment struct {
	x0, y0, x1, y1 float64
	lat0, lat1     float64
}

func riverSegments(proj raster.Projector, ls orb.LineString, minPix float64) []segment {
	if len(ls) < 2 {
		return nil
	}
	px, py := proj(ls[0][0], ls[0][1])
	plat := ls[0][1]
	var out []segment
	for _, pt := range ls[1:] {
		x, y := proj(pt[0], pt[1])
		dx, dy := x-px, y-py
		if dx*dx+dy*dy < minPix*minPix {
			continue
		}
		out = append(out, segment{x0: px, y0: py, x1: x, y1: y, lat0: plat, lat1: pt[1]})
		px, py, plat = x, y, pt[1]
	}
	return out
}

func clampZoom(z int) int {
	if z < 1 {
		return 1
	}
	if z > 3 {
		return 3
	}
	return z
}
