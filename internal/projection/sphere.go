package projection

import (
	"math"

	"github.com/golang/geo/r3"
)

// EarthRadiusKm：平均地球半径
const EarthRadiusKm = 6371.0

// 文档注释：网格局部坐标（球面上的点）→ 经纬度（度）
// 约束：lat=asin(y/r)；φ=atan2(z,−x) 归一化到 [0,360)，lon=−(180−φ)；该符号/偏移是球体网格 UV 布局的逆，不可改动
// 返回：r 为 0 时返回 ok=false
func LocalToLonLat(p r3.Vector) (lon, lat float64, ok bool) {
	r := p.Norm()
	if r == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, 0, false
	}
	s := p.Y / r
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	lat = RadToDeg(math.Asin(s))
	phi := RadToDeg(math.Atan2(p.Z, -p.X))
	if phi < 0 {
		phi += 360
	}
	lon = NormalizeLon(-(180 - phi))
	return lon, lat, true
}

// LonLatToLocal：LocalToLonLat 的正向，φ=180+lon；用于标签锚点
func LonLatToLocal(lonDeg, latDeg, radius float64) r3.Vector {
	lat := DegToRad(latDeg)
	phi := DegToRad(180 + lonDeg)
	cosLat := math.Cos(lat)
	return r3.Vector{
		X: -radius * math.Cos(phi) * cosLat,
		Y: radius * math.Sin(lat),
		Z: radius * math.Sin(phi) * cosLat,
	}
}

// CentralAngle：两点间大圆圆心角（弧度），半正矢公式
func CentralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := DegToRad(lat1)
	phi2 := DegToRad(lat2)
	dPhi := DegToRad(lat2 - lat1)
	dLambda := DegToRad(NormalizeLon(lon2 - lon1))
	s := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(s)))
}

// Haversine：球面距离（千米）
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadiusKm * CentralAngle(lat1, lon1, lat2, lon2)
}

// UnitVector：经纬度（度）→ 地心单位向量（x 指向 0°E，z 指向北极）
// 仅用于距离比较，与网格局部坐标系无关
func UnitVector(latDeg, lonDeg float64) r3.Vector {
	lat := DegToRad(latDeg)
	lon := DegToRad(lonDeg)
	return r3.Vector{X: math.Cos(lat) * math.Cos(lon), Y: math.Cos(lat) * math.Sin(lon), Z: math.Sin(lat)}
}

// ChordToAngle：单位球弦长 → 圆心角（弧度）
func ChordToAngle(chord float64) float64 {
	return 2 * math.Asin(math.Min(1, chord/2))
}
