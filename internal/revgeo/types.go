package revgeo

// 文档注释：拾取结果
// 背景：Lon/Lat 为本次输入点的逆投影；Country/City 未命中时为 nil；Elevation 仅在已有高程拼接图且落在已加载瓦片上时给出
type Pick struct {
	Lon       float64     `json:"lon"`
	Lat       float64     `json:"lat"`
	Country   *CountryHit `json:"country,omitempty"`
	City      *CityHit    `json:"city,omitempty"`
	Elevation *float64    `json:"elevation,omitempty"`
}

// CountryHit：命中的国家
type CountryHit struct {
	Name string `json:"name"`
	ISO3 string `json:"iso3,omitempty"`
}

// CityHit：120 km 以内的最近城市
type CityHit struct {
	Name       string  `json:"name"`
	ISO3       string  `json:"iso3,omitempty"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	Population float64 `json:"population"`
	DistanceKm float64 `json:"distance_km"`
}

// 缓存项：某一精确坐标的国家与城市结果
type features struct {
	country *CountryHit
	city    *CityHit
}
