// 包 sun：太阳方向（昼夜分界）
package sun

import (
	"math"
	"time"

	"globe-core/internal/projection"

	"github.com/golang/geo/r3"
)

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// 黄赤交角（度）
const obliquityDeg = 23.4397

// DaysSinceJ2000：距 J2000.0（2000-01-01 12:00 UTC）的天数
func DaysSinceJ2000(t time.Time) float64 {
	return float64(t.Sub(j2000)) / float64(24*time.Hour)
}

// 文档注释：太阳方向（与球体网格同一局部坐标系的单位向量）
// 背景：低精度星历，精度约 0.01°，足够用于昼夜着色；赤纬取 y 分量，时角按格林尼治恒星时换算。
// 约束：LocalToLonLat(Direction(t)) 即为该时刻的太阳直射点
func Direction(t time.Time) r3.Vector {
	d := DaysSinceJ2000(t)
	l := math.Mod(280.460+0.9856474*d, 360)
	g := projection.DegToRad(math.Mod(357.528+0.9856003*d, 360))
	lambda := projection.DegToRad(l) + projection.DegToRad(1.915)*math.Sin(g) + projection.DegToRad(0.020)*math.Sin(2*g)
	eps := projection.DegToRad(obliquityDeg)

	sinL, cosL := math.Sincos(lambda)
	alpha := math.Atan2(math.Cos(eps)*sinL, cosL)
	delta := math.Asin(math.Sin(eps) * sinL)
	gst := projection.DegToRad(math.Mod(280.46061837+360.98564736629*d, 360))
	h := gst - alpha

	v := r3.Vector{
		X: math.Cos(delta) * math.Cos(h),
		Y: math.Sin(delta),
		Z: math.Cos(delta) * math.Sin(h),
	}
	return v.Normalize()
}

// Subsolar：太阳直射点经纬度（度）
func Subsolar(t time.Time) (lon, lat float64) {
	lon, lat, _ = projection.LocalToLonLat(Direction(t))
	return lon, lat
}
