package cities

import (
	"math"

	"globe-core/internal/projection"

	"github.com/golang/geo/r3"
)

// MaxPickKm：最近城市的最大容忍距离，超出视为未命中
const MaxPickKm = 120.0

// 文档注释：KD-Tree 最近邻（三维单位向量）
// 背景：城市映射到单位球面，弦长与球心角单调对应，按弦长找到的最近点即大圆距离最近点；跨日界线与极区无需特殊处理。
// 约束：中位数分割，X/Y/Z 轮换；只支持单点最近查询；距离相等时取先访问到的节点。
type Index struct {
	root   *kdNode
	cities []City
}

type kdNode struct {
	i  int
	p  r3.Vector
	ax int
	l  *kdNode
	r  *kdNode
}

type entry struct {
	i int
	p r3.Vector
}

func NewIndex(cs []City) *Index {
	es := make([]entry, len(cs))
	for i, c := range cs {
		es[i] = entry{i: i, p: projection.UnitVector(c.Lat, c.Lon)}
	}
	return &Index{root: buildKD(es, 0), cities: cs}
}

// Len：索引中的城市数
func (ix *Index) Len() int { return len(ix.cities) }

func buildKD(es []entry, depth int) *kdNode {
	if len(es) == 0 {
		return nil
	}
	ax := depth % 3
	mid := len(es) / 2
	selectNth(es, mid, ax)
	n := &kdNode{i: es[mid].i, p: es[mid].p, ax: ax}
	n.l = buildKD(es[:mid], depth+1)
	n.r = buildKD(es[mid+1:], depth+1)
	return n
}

// 原地 nth 元素选择
func selectNth(a []entry, n, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []entry, lo, hi, pivot, ax int) int {
	pv := coord(a[pivot].p, ax)
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if coord(a[j].p, ax) < pv {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func coord(v r3.Vector, ax int) float64 {
	switch ax {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// 文档注释：最近城市
// 返回：城市、大圆距离（千米）；索引为空或坐标非有限值时 ok=false
func (ix *Index) Nearest(lat, lon float64) (c City, km float64, ok bool) {
	if ix == nil || ix.root == nil || !finite(lat) || !finite(lon) {
		return City{}, 0, false
	}
	q := projection.UnitVector(lat, lon)
	best := -1
	bestD2 := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		if d2 := q.Sub(n.p).Norm2(); d2 < bestD2 {
			bestD2, best = d2, n.i
		}
		diff := coord(q, n.ax) - coord(n.p, n.ax)
		first, second := n.l, n.r
		if diff >= 0 {
			first, second = n.r, n.l
		}
		dfs(first)
		// 分割平面到查询点的距离小于当前最优才需要访问另一侧
		if diff*diff < bestD2 {
			dfs(second)
		}
	}
	dfs(ix.root)
	if best < 0 {
		return City{}, 0, false
	}
	c = ix.cities[best]
	return c, projection.Haversine(lat, lon, c.Lat, c.Lon), true
}

// NearestWithin：超过 maxKm 视为未命中，返回 nil
func (ix *Index) NearestWithin(lat, lon, maxKm float64) (*City, float64) {
	c, km, ok := ix.Nearest(lat, lon)
	if !ok || km > maxKm {
		return nil, km
	}
	return &c, km
}

// NearestLinear：逐个比较球心角的参考实现
func NearestLinear(cs []City, lat, lon float64) (City, float64, bool) {
	best := -1
	bestAng := math.Inf(1)
	for i, c := range cs {
		if a := projection.CentralAngle(lat, lon, c.Lat, c.Lon); a < bestAng {
			bestAng, best = a, i
		}
	}
	if best < 0 {
		return City{}, 0, false
	}
	return cs[best], bestAng * projection.EarthRadiusKm, true
}
