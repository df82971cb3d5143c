// 包 projection：经纬度与贴图坐标之间的正/反向换算
// 两个命名坐标空间：等距圆柱（高程存储、城市点）与墨卡托（矢量叠加层栅格化）；跨越边界处必须显式调用换算函数
package projection

import "math"

// MaxMercatorLatDeg：墨卡托有效纬度上限（度）
const MaxMercatorLatDeg = 85.05112878

// maxMercatorLatRad ≈ 1.48442223
var maxMercatorLatRad = MaxMercatorLatDeg * math.Pi / 180

func DegToRad(d float64) float64 { return d * math.Pi / 180 }
func RadToDeg(r float64) float64 { return r * 180 / math.Pi }

// ClampMercatorLat：将纬度（弧度）钳制到墨卡托有效区间；幂等
func ClampMercatorLat(latRad float64) float64 {
	if latRad > maxMercatorLatRad {
		return maxMercatorLatRad
	}
	if latRad < -maxMercatorLatRad {
		return -maxMercatorLatRad
	}
	return latRad
}

// 文档注释：墨卡托正向投影（弧度 → UV）
// 约束：u∈[0,1]，v 在钳制后的纬度内落在 [0,1]；v 向南增大（图像行方向）
func MercatorUV(lonRad, latRad float64) (float64, float64) {
	lat := ClampMercatorLat(latRad)
	u := (lonRad + math.Pi) / (2 * math.Pi)
	v := (1 - math.Log(math.Tan(math.Pi/4+lat/2))/math.Pi) * 0.5
	return u, v
}

// MercatorPixel：经纬度（度）→ 墨卡托像素空间，宽高为目标栅格尺寸
func MercatorPixel(lonDeg, latDeg float64, w, h int) (float64, float64) {
	u, v := MercatorUV(DegToRad(lonDeg), DegToRad(latDeg))
	return u * float64(w), v * float64(h)
}

// EquirectUV：等距圆柱正向（弧度 → UV）
func EquirectUV(lonRad, latRad float64) (float64, float64) {
	return (lonRad/math.Pi + 1) / 2, 0.5 - latRad/math.Pi
}

// EquirectLonLat：等距圆柱反向（UV → 弧度），lon=(2u−1)π，lat=(0.5−v)π
func EquirectLonLat(u, v float64) (float64, float64) {
	return (u*2 - 1) * math.Pi, (0.5 - v) * math.Pi
}

// EquirectPixel：经纬度（度）→ 等距圆柱像素空间；城市点图层使用
func EquirectPixel(lonDeg, latDeg float64, w, h int) (float64, float64) {
	u := (lonDeg + 180) / 360
	v := (90 - latDeg) / 180
	return u * float64(w), v * float64(h)
}

// 文档注释：等距圆柱 UV → 墨卡托 UV
// 背景：显示端按片元先以等距圆柱解出经纬度，再以墨卡托采样高程与叠加层；服务端采样高程时复用同一换算
func EquirectToMercatorUV(u, v float64) (float64, float64) {
	lon, lat := EquirectLonLat(u, v)
	return MercatorUV(lon, lat)
}

// NormalizeLon：经度归一化到 (−180, 180]；对任意有限实数幂等
func NormalizeLon(lon float64) float64 {
	l := math.Mod(lon, 360)
	if l > 180 {
		l -= 360
	}
	if l <= -180 {
		l += 360
	}
	return l
}
