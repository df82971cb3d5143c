// 包 raster：矢量几何到像素空间的栅格化（多边形填充、折线描边、圆点）与通道合成
package raster

import (
	"image"
	"math"

	"globe-core/internal/projection"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// Projector：经纬度（度）→ 像素坐标
type Projector func(lonDeg, latDeg float64) (x, y float64)

// Mercator：W×H 的 Web Mercator 像素空间（矢量掩膜使用）
func Mercator(w, h int) Projector {
	return func(lon, lat float64) (float64, float64) { return projection.MercatorPixel(lon, lat, w, h) }
}

// Equirect：W×H 的等距圆柱像素空间（城市圆点使用）
func Equirect(w, h int) Projector {
	return func(lon, lat float64) (float64, float64) { return projection.EquirectPixel(lon, lat, w, h) }
}

// 文档注释：多边形覆盖率累加器
// 背景：每个多边形的全部环加入同一条路径，非零环绕累加，外环与洞不作区分；少于 3 点的环跳过
// 约束：覆盖率写入单通道 Alpha，随后由 SourceOver 合成到目标通道
type Filler struct {
	w, h int
	proj Projector
	cov  *image.Alpha
	ras  *vector.Rasterizer
	src  *image.Uniform
}

func NewFiller(w, h int, proj Projector) *Filler {
	return &Filler{
		w: w, h: h, proj: proj,
		cov: image.NewAlpha(image.Rect(0, 0, w, h)),
		ras: vector.NewRasterizer(1, 1),
		src: image.NewUniform(image.Opaque),
	}
}

// FillPolygon：栅格化单个多边形；只在其像素包围盒内累加
func (f *Filler) FillPolygon(p orb.Polygon) {
	pts := make([][][2]float64, 0, len(p))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		rp := make([][2]float64, len(ring))
		for i, pt := range ring {
			x, y := f.proj(pt[0], pt[1])
			rp[i] = [2]float64{x, y}
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
		pts = append(pts, rp)
	}
	if len(pts) == 0 {
		return
	}
	box := image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1).
		Intersect(f.cov.Rect)
	if box.Empty() {
		return
	}
	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	f.ras.Reset(box.Dx(), box.Dy())
	for _, rp := range pts {
		f.ras.MoveTo(float32(rp[0][0]-ox), float32(rp[0][1]-oy))
		for _, q := range rp[1:] {
			f.ras.LineTo(float32(q[0]-ox), float32(q[1]-oy))
		}
		f.ras.ClosePath()
	}
	f.ras.Draw(f.cov, box, f.src, image.Point{})
}

// FillGeometry：Polygon/MultiPolygon 逐个填充，其他类型忽略
func (f *Filler) FillGeometry(g orb.Geometry) {
	switch v := g.(type) {
	case orb.Polygon:
		f.FillPolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			f.FillPolygon(p)
		}
	}
}

// Coverage：累计覆盖率（与 Filler 共享底层缓冲）
func (f *Filler) Coverage() *image.Alpha { return f.cov }

// 文档注释：描边画布
// 背景：圆角端点/连接由 gg 负责；颜色的 alpha 决定覆盖强度
// 约束：折线只 moveTo/lineTo 后描边，从不闭合；少于 2 点跳过
type Stroker struct {
	dc   *gg.Context
	proj Projector
}

func NewStroker(w, h int, proj Projector) *Stroker {
	dc := gg.NewContext(w, h)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetRGBA(1, 1, 1, 1)
	dc.SetLineWidth(1)
	return &Stroker{dc: dc, proj: proj}
}

func (s *Stroker) SetWidth(w float64) { s.dc.SetLineWidth(w) }

func (s *Stroker) SetAlpha(a float64) { s.dc.SetRGBA(1, 1, 1, a) }

// Project：与描边一致的像素投影
func (s *Stroker) Project(lon, lat float64) (x, y float64) { return s.proj(lon, lat) }

// StrokeLine：折线按当前线宽描边
func (s *Stroker) StrokeLine(ls orb.LineString) {
	if len(ls) < 2 {
		return
	}
	x, y := s.proj(ls[0][0], ls[0][1])
	s.dc.MoveTo(x, y)
	for _, p := range ls[1:] {
		x, y = s.proj(p[0], p[1])
		s.dc.LineTo(x, y)
	}
	s.dc.Stroke()
}

// StrokeRings：多边形每个环各自作为开放折线描边
func (s *Stroker) StrokeRings(p orb.Polygon) {
	for _, r := range p {
		s.StrokeLine(orb.LineString(r))
	}
}

// Segment：像素空间单段描边，线宽只作用于这一段
func (s *Stroker) Segment(x0, y0, x1, y1, width float64) {
	s.dc.SetLineWidth(width)
	s.dc.MoveTo(x0, y0)
	s.dc.LineTo(x1, y1)
	s.dc.Stroke()
}

// Disc：加入一个实心圆到当前路径；调用 FillDiscs 一次性填充
func (s *Stroker) Disc(x, y, r float64) {
	s.dc.NewSubPath()
	s.dc.DrawCircle(x, y, r)
}

func (s *Stroker) FillDiscs() { s.dc.Fill() }

// Mask：当前画布的 alpha 覆盖率
func (s *Stroker) Mask() *image.Alpha { return s.dc.AsMask() }
