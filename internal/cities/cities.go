// 包 cities：人口聚居点数据集、城市圆点掩膜与最近城市查询
package cities

import (
	"context"
	"math"

	"globe-core/internal/geodata"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// City：归一化后的城市点
type City struct {
	Name string  `json:"name"`
	ISO3 string  `json:"iso3,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Pop  float64 `json:"population"`
}

// DatasetName：Natural Earth 1:10m 聚居点（简化版）
var DatasetName = geodata.Name(geodata.ThemePopulatedPlace, geodata.Res10m)

var (
	nameKeys = []string{"name", "nameascii", "NAME", "NAMEASCII", "NAMEALT", "SOV0NAME"}
	popKeys  = []string{"pop_max", "POP_MAX", "POP_MIN", "POP_OTHER", "population"}
	isoKeys  = []string{"adm0_a3", "ADM0_A3", "sov_a3", "SOV_A3"}
)

// 文档注释：要素 → City 列表
// 背景：几何缺失时退回 LONGITUDE/LATITUDE 属性；名称按候选键回退，全空记为 Unknown
// 约束：坐标非有限、|lat|>90、|lon|>180 或人口 ≤ 0 的点在此剔除
func Normalize(fc *geojson.FeatureCollection) []City {
	if fc == nil {
		return nil
	}
	out := make([]City, 0, len(fc.Features))
	for _, f := range fc.Features {
		lon, lat := math.NaN(), math.NaN()
		if p, ok := f.Geometry.(orb.Point); ok {
			lon, lat = p[0], p[1]
		} else {
			if v, ok := geodata.PropFloat(f.Properties, "LONGITUDE", "longitude"); ok {
				lon = v
			}
			if v, ok := geodata.PropFloat(f.Properties, "LATITUDE", "latitude"); ok {
				lat = v
			}
		}
		pop, _ := geodata.PropFloat(f.Properties, popKeys...)
		c := City{
			Name: geodata.PropString(f.Properties, nameKeys...),
			ISO3: geodata.PropString(f.Properties, isoKeys...),
			Lat:  lat,
			Lon:  lon,
			Pop:  pop,
		}
		if c.Name == "" {
			c.Name = "Unknown"
		}
		if c.ISO3 == "-99" {
			c.ISO3 = ""
		}
		if !valid(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func valid(c City) bool {
	if !finite(c.Lat) || !finite(c.Lon) || !finite(c.Pop) {
		return false
	}
	return math.Abs(c.Lat) <= 90 && math.Abs(c.Lon) <= 180 && c.Pop > 0
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Store：城市数据与索引的进程级入口（经注册表共享加载）
type Store struct {
	reg *geodata.Registry
}

func NewStore(reg *geodata.Registry) *Store { return &Store{reg: reg} }

// Load：加载并归一化城市列表；失败不缓存
func (s *Store) Load(ctx context.Context) ([]City, error) {
	v, err := s.reg.Load(ctx, "cities:"+DatasetName, func(lctx context.Context) (any, error) {
		fc, err := s.reg.Collection(lctx, DatasetName)
		if err != nil {
			return nil, err
		}
		return Normalize(fc), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]City), nil
}

// Index：城市最近邻索引（首次使用时构建一次）
func (s *Store) Index(ctx context.Context) (*Index, error) {
	v, err := s.reg.Load(ctx, "cities-index:"+DatasetName, func(lctx context.Context) (any, error) {
		cs, err := s.Load(lctx)
		if err != nil {
			return nil, err
		}
		return NewIndex(cs), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}
