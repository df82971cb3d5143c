package cities

import (
	"image"
	"math"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"
	"globe-core/internal/raster"
)

// MaskParams：Size 为宽度，高度取 Size/2；Threshold 为最小人口
type MaskParams struct {
	Threshold float64
	Size      int
	PxPerDot  float64
}

func DefaultMaskParams() MaskParams {
	return MaskParams{Threshold: 1_000_000, Size: 4096, PxPerDot: 1.1}
}

// DotRadius：半径随人口对数增长，下限 0.6 像素
func DotRadius(pop, pxPerDot float64) float64 {
	return math.Max(0.6, (math.Log10(math.Max(pop, 1))-4)*pxPerDot)
}

// 文档注释：城市圆点掩膜（等距圆柱，W × W/2）
// 背景：圆心取像素四舍五入位置；人口不足阈值或坐标非有限的城市跳过
func BuildMask(cs []City, p MaskParams) *image.Alpha {
	t0 := time.Now()
	if p.Size <= 1 {
		p.Size = 4096
	}
	threshold := math.Max(0, p.Threshold)
	w, h := p.Size, p.Size/2
	s := raster.NewStroker(w, h, raster.Equirect(w, h))
	drawn := 0
	for _, c := range cs {
		if !finite(c.Lat) || !finite(c.Lon) || c.Pop < threshold {
			continue
		}
		x, y := s.Project(c.Lon, c.Lat)
		s.Disc(math.Round(x), math.Round(y), DotRadius(c.Pop, p.PxPerDot))
		drawn++
	}
	if drawn > 0 {
		s.FillDiscs()
	}
	m := s.Mask()
	metrics.MaskBuildsTotal.WithLabelValues("cities", "ok").Inc()
	metrics.MaskBuildDurationMs.WithLabelValues("cities").Observe(float64(time.Since(t0).Milliseconds()))
	logger.L().Debug("cities_mask_ok", "w", w, "h", h, "dots", drawn, "threshold", threshold)
	return m
}
