// 包 countries：国家多边形数据集、跨日界线点入多边形与质心择优
package countries

import (
	"context"
	"fmt"
	"math"
	"sort"

	"globe-core/internal/geodata"
	"globe-core/internal/projection"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DatasetName：Natural Earth 1:110m 国家边界
var DatasetName = geodata.Name(geodata.ThemeCountries, geodata.Res110m)

// 文档注释：归一化后的国家要素
// 背景：BBox 为 [minLon, minLat, maxLon, maxLat]，经度已归一化到 (−180,180]；Centroid 为各外环顶点均值
type Feature struct {
	Name       string             `json:"name"`
	ISO3       string             `json:"iso3,omitempty"`
	Geometry   orb.MultiPolygon   `json:"-"`
	BBox       [4]float64         `json:"bbox"`
	Centroid   orb.Point          `json:"centroid"`
	Properties geojson.Properties `json:"-"`
}

var (
	nameKeys = []string{"NAME_EN", "ADMIN", "NAME_LONG", "NAME", "SOVEREIGNT", "GEOUNIT", "BRK_NAME", "NAME_SORT", "FORMAL_EN", "ALT_NAME"}
	isoKeys  = []string{"ISO_A3_EH", "ADM0_A3", "ISO_A3", "ADM0_A3_US", "ABBREV"}
)

// 文档注释：单个要素归一化
// 约束：名称按候选键回退，再退回小写 name/admin；ISO3 为 "-99" 视为缺失；无面几何的要素返回 ok=false
func NormalizeFeature(f *geojson.Feature) (Feature, bool) {
	polys := geodata.Polygons(f.Geometry)
	if len(polys) == 0 {
		return Feature{}, false
	}
	out := Feature{
		Name:       geodata.PropString(f.Properties, nameKeys...),
		Geometry:   orb.MultiPolygon(polys),
		Properties: f.Properties,
	}
	if out.Name == "" {
		out.Name = geodata.PropString(f.Properties, "name", "admin")
	}
	if iso := geodata.PropString(f.Properties, isoKeys...); iso != "-99" {
		out.ISO3 = iso
	}
	out.BBox = computeBBox(out.Geometry)
	out.Centroid = centroid(out.Geometry)
	return out, true
}

// Normalize：整表归一化，跳过无几何要素
func Normalize(fc *geojson.FeatureCollection) []Feature {
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if nf, ok := NormalizeFeature(f); ok {
			out = append(out, nf)
		}
	}
	return out
}

// 文档注释：经纬包围盒
// 背景：经度先归一化；某个环跨越日界线时取覆盖全部顶点的最短经度弧，此时 minLon > maxLon
func computeBBox(mp orb.MultiPolygon) [4]float64 {
	b := [4]float64{180, 90, -180, -90}
	var lons []float64
	for _, p := range mp {
		for _, r := range p {
			for _, pt := range r {
				lon := projection.NormalizeLon(pt[0])
				lons = append(lons, lon)
				b[0] = math.Min(b[0], lon)
				b[2] = math.Max(b[2], lon)
				b[1] = math.Min(b[1], pt[1])
				b[3] = math.Max(b[3], pt[1])
			}
		}
	}
	if crossesAntimeridian(mp) {
		b[0], b[2] = shortestLonArc(lons)
	}
	return b
}

func crossesAntimeridian(mp orb.MultiPolygon) bool {
	for _, p := range mp {
		for _, r := range p {
			for i := 1; i < len(r); i++ {
				d := projection.NormalizeLon(r[i][0]) - projection.NormalizeLon(r[i-1][0])
				if math.Abs(d) > 180 {
					return true
				}
			}
		}
	}
	return false
}

// shortestLonArc：去掉相邻经度间最大的空档，剩下的弧即包围区间
func shortestLonArc(lons []float64) (float64, float64) {
	s := append([]float64(nil), lons...)
	sort.Float64s(s)
	n := len(s)
	gap := s[0] + 360 - s[n-1]
	lo, hi := s[0], s[n-1]
	for i := 0; i+1 < n; i++ {
		if g := s[i+1] - s[i]; g > gap {
			gap, lo, hi = g, s[i+1], s[i]
		}
	}
	return lo, hi
}

// 质心：所有外环顶点的均值，只用于择优比较；经度相对首个顶点展开后再平均，跨日界线的要素不会被拉到 0°
func centroid(mp orb.MultiPolygon) orb.Point {
	var sumLon, sumLat float64
	n := 0
	ref := math.NaN()
	for _, p := range mp {
		if len(p) == 0 {
			continue
		}
		for _, pt := range p[0] {
			if math.IsNaN(ref) {
				ref = projection.NormalizeLon(pt[0])
			}
			sumLon += unwrapNear(pt[0], ref)
			sumLat += pt[1]
			n++
		}
	}
	if n == 0 {
		return orb.Point{}
	}
	return orb.Point{projection.NormalizeLon(sumLon / float64(n)), sumLat / float64(n)}
}

// 文档注释：国家数据集入口
// 背景：首次加载期间的并发调用共享同一次加载；成功后只读常驻
// 约束：加载失败把错误返回给调用方，且不留缓存，下一次调用重新加载
type Store struct {
	reg *geodata.Registry
}

func NewStore(reg *geodata.Registry) *Store { return &Store{reg: reg} }

func (s *Store) Load(ctx context.Context) ([]Feature, error) {
	v, err := s.reg.Load(ctx, "countries:"+DatasetName, func(lctx context.Context) (any, error) {
		fc, err := s.reg.Collection(lctx, DatasetName)
		if err != nil {
			return nil, err
		}
		return Normalize(fc), nil
	})
	if err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	return v.([]Feature), nil
}

// FindAt：加载后定位；数据集不可用时返回错误，未命中返回 nil
func (s *Store) FindAt(ctx context.Context, lon, lat float64) (*Feature, error) {
	fs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return FindAt(fs, lon, lat), nil
}
