package geodata

import (
	"strconv"

	"github.com/paulmach/orb"
)

// Polygons：将 Polygon/MultiPolygon 展开为多边形列表；其他类型或空几何返回 nil
func Polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return []orb.Polygon(v)
	case orb.Ring:
		return []orb.Polygon{{v}}
	}
	return nil
}

// Lines：将 LineString/MultiLineString 展开为折线列表
func Lines(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return []orb.LineString(v)
	}
	return nil
}

// PropString：按候选键顺序取第一个非空字符串属性
func PropString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// PropFloat：按候选键顺序取第一个数值属性（兼容数字字符串）
func PropFloat(props map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch x := props[k].(type) {
		case float64:
			return x, true
		case float32:
			return float64(x), true
		case int:
			return float64(x), true
		case int64:
			return float64(x), true
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
