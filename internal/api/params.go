package api

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// 数值参数只做钳制不做拒绝：缺失或无法解析时取默认值
func queryFloat(q url.Values, key string, def float64) float64 {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func queryInt(q url.Values, key string, def int) int {
	return int(math.Round(queryFloat(q, key, float64(def))))
}

func clampFloat(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// 掩膜缩放级别：1..3
func maskZoom(q url.Values) int { return clampInt(queryInt(q, "z", 2), 1, 3) }

// 必填坐标：缺失或非有限返回 ok=false
func queryCoord(q url.Values, key string) (float64, bool) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
