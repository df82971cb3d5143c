package terrain

import (
	"math"

	"globe-core/internal/projection"
)

// DecodeTerrarium：Terrarium 编码 → 米
func DecodeTerrarium(r, g, b uint8) float64 {
	return float64(r)*256 + float64(g) + float64(b)/256 - 32768
}

// 文档注释：按经纬度最近邻采样高程
// 背景：与着色器一致，先把经纬度投到 Mercator UV，再在拼接图上取最近像素
// 返回：落在缺失瓦片上时 ok=false
func (m *Mosaic) ElevationAt(lonDeg, latDeg float64) (meters float64, ok bool) {
	if m == nil || m.Image == nil || math.IsNaN(lonDeg) || math.IsNaN(latDeg) {
		return 0, false
	}
	u, v := projection.MercatorUV(projection.DegToRad(projection.NormalizeLon(lonDeg)), projection.DegToRad(latDeg))
	return m.sampleUV(u, v)
}

// ElevationAtEquirect：着色器路径，输入等距圆柱 UV
func (m *Mosaic) ElevationAtEquirect(u, v float64) (float64, bool) {
	mu, mv := projection.EquirectToMercatorUV(u, v)
	return m.sampleUV(mu, mv)
}

func (m *Mosaic) sampleUV(u, v float64) (float64, bool) {
	px := clampInt(int(math.Floor(u*float64(m.Width))), 0, m.Width-1)
	py := clampInt(int(math.Floor(v*float64(m.Height))), 0, m.Height-1)
	if m.missingAt(px/TileSize, py/TileSize) {
		return 0, false
	}
	c := m.Image.NRGBAAt(px, py)
	return DecodeTerrarium(c.R, c.G, c.B), true
}

func (m *Mosaic) missingAt(tx, ty int) bool {
	for _, t := range m.Missing {
		if int(t.X) == tx && int(t.Y) == ty {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
