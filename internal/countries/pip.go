package countries

import (
	"math"

	"globe-core/internal/projection"

	"github.com/paulmach/orb"
)

// bboxTolerance：包围盒预筛的外扩量（度）
const bboxTolerance = 0.2

// 文档注释：按经纬度定位国家
// 背景：包围盒预筛（跨日界线感知）→ 每环射线法 → 命中多个时取质心大圆距离最近者
// 返回：未命中返回 nil
func FindAt(fs []Feature, lon, lat float64) *Feature {
	if len(fs) == 0 || math.IsNaN(lon) || math.IsNaN(lat) {
		return nil
	}
	L := projection.NormalizeLon(lon)
	var best *Feature
	bestD := math.Inf(1)
	for i := range fs {
		f := &fs[i]
		b := f.BBox
		if lat < b[1]-bboxTolerance || lat > b[3]+bboxTolerance {
			continue
		}
		if !withinWrapped(L, b[0]-bboxTolerance, b[2]+bboxTolerance) {
			continue
		}
		if !multiPolygonContains(f.Geometry, L, lat) {
			continue
		}
		if d := projection.CentralAngle(lat, L, f.Centroid[1], f.Centroid[0]); d < bestD {
			best, bestD = f, d
		}
	}
	return best
}

// withinWrapped：min > max 表示跨日界线的区间 [min,180] ∪ [−180,max]
func withinWrapped(x, min, max float64) bool {
	if min <= max {
		return x >= min && x <= max
	}
	return x >= min || x <= max
}

func multiPolygonContains(mp orb.MultiPolygon, lon, lat float64) bool {
	for _, p := range mp {
		if polygonContains(p, lon, lat) {
			return true
		}
	}
	return false
}

// 外环决定初值，每个命中的洞翻转一次
func polygonContains(p orb.Polygon, lon, lat float64) bool {
	inside := false
	for i, r := range p {
		hit := ringContains(r, lon, lat)
		if i == 0 {
			inside = hit
		} else if hit {
			inside = !inside
		}
	}
	return inside
}

// 射线法；每个顶点经度先展开到查询经度 ±180° 以内
func ringContains(r orb.Ring, lon, lat float64) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		x1, y1 := unwrapNear(r[j][0], lon), r[j][1]
		x2, y2 := unwrapNear(r[i][0], lon), r[i][1]
		if (y1 > lat) != (y2 > lat) && lon < (x2-x1)*(lat-y1)/((y2-y1)+1e-12)+x1 {
			inside = !inside
		}
	}
	return inside
}

func unwrapNear(x, ref float64) float64 {
	v := projection.NormalizeLon(x)
	for v-ref > 180 {
		v -= 360
	}
	for v-ref < -180 {
		v += 360
	}
	return v
}
