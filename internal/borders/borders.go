// 包 borders：国界线 alpha 掩膜
package borders

import (
	"context"
	"image"
	"math"
	"time"

	"globe-core/internal/geodata"
	"globe-core/internal/logger"
	"globe-core/internal/metrics"
	"globe-core/internal/raster"

	"github.com/paulmach/orb/geojson"
)

// Params：Width/Height 为 0 时取 256·2^Zoom
type Params struct {
	Zoom          int
	Width, Height int
	WidthPx       float64
	Alpha         float64
}

func DefaultParams(z int) Params { return Params{Zoom: z, WidthPx: 0.9, Alpha: 1.0} }

type Builder struct {
	reg *geodata.Registry
}

func NewBuilder(reg *geodata.Registry) *Builder { return &Builder{reg: reg} }

// StrokeWidth：国界线宽
func StrokeWidth(w int, widthPx float64) float64 {
	return math.Max(0.5, float64(w)/4096*widthPx*1.1)
}

// 文档注释：数据集选择
// 约束：z ≥ 3 只用 10m，不回退；否则 50m，失败回退 110m
func (b *Builder) load(ctx context.Context, z int) (*geojson.FeatureCollection, string, error) {
	if z >= 3 {
		name := geodata.Name(geodata.ThemeBorders, geodata.Res10m)
		fc, err := b.reg.Collection(ctx, name)
		return fc, name, err
	}
	return b.reg.FirstAvailable(ctx,
		geodata.Name(geodata.ThemeBorders, geodata.Res50m),
		geodata.Name(geodata.ThemeBorders, geodata.Res110m))
}

// 文档注释：构建国界掩膜
// 背景：下游只消费 alpha 通道；线条按数据集顺序描边，圆角端点与连接
// 返回：失败返回 nil（只记日志）
func (b *Builder) Build(ctx context.Context, p Params) *image.Alpha {
	t0 := time.Now()
	fc, name, err := b.load(ctx, p.Zoom)
	if err != nil {
		metrics.MaskBuildsTotal.WithLabelValues("borders", "fail").Inc()
		logger.L().Warn("borders_build_failed", "z", p.Zoom, "err", err)
		return nil
	}
	w, h := p.Width, p.Height
	if w <= 0 || h <= 0 {
		w = 256 << clampZoom(p.Zoom)
		h = w
	}
	s := raster.NewStroker(w, h, raster.Mercator(w, h))
	s.SetWidth(StrokeWidth(w, p.WidthPx))
	s.SetAlpha(math.Min(1, math.Max(0, p.Alpha)))
	for _, f := range fc.Features {
		for _, ls := range geodata.Lines(f.Geometry) {
			s.StrokeLine(ls)
		}
	}
	m := s.Mask()
	metrics.MaskBuildsTotal.WithLabelValues("borders", "ok").Inc()
	metrics.MaskBuildDurationMs.WithLabelValues("borders").Observe(float64(time.Since(t0).Milliseconds()))
	logger.L().Info("borders_build_ok", "z", p.Zoom, "dataset", name, "features", len(fc.Features), "ms", time.Since(t0).Milliseconds())
	return m
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
