package population

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/projection"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DefaultCityRadiusKm：城市人口搜索半径
const DefaultCityRadiusKm = 50

type candidate struct {
	e         Entity
	title     string
	dist      float64
	nameMatch bool
	strict    bool
	score     float64
}

func (c candidate) population() Population {
	p := c.e.Pop
	p.QID = c.e.QID
	return p
}

// 文档注释：候选打分
// 背景：人口量级为主，同名与近距离加分；年份只做微弱的新旧区分。
func scoreCandidate(c candidate) float64 {
	pop := 1.0
	if c.e.Pop.Value != nil && *c.e.Pop.Value > 1 {
		pop = *c.e.Pop.Value
	}
	s := math.Log10(pop) * 2
	if c.e.Pop.Year != nil {
		s += float64(*c.e.Pop.Year) / 4000
	}
	if c.nameMatch {
		s += 2
	}
	if c.strict {
		s += 0.4
	}
	s -= math.Min(1.5, c.dist/50)
	return s
}

// 文档注释：城市人口策略集合（Wikipedia geosearch → 名称搜索 → SPARQL）
// 背景：geosearch 候选按查询键记忆，严格策略与宽松策略共享同一批候选，不重复请求。
// 约束：命中的 QID 按"名称|ISO3"记住，后续同名查询直接读实体。
type CityStrategies struct {
	wd     *Wikidata
	byName *Memo[string]
	near   *Memo[[]candidate]
}

func NewCityStrategies(wd *Wikidata, rc *redis.Client, ttl time.Duration) *CityStrategies {
	return &CityStrategies{
		wd:     wd,
		byName: NewMemo[string]("pop:qid:", rc, ttl),
		near:   NewMemo[[]candidate]("", nil, 0),
	}
}

// Chain：按优先级组装城市策略链
func (cs *CityStrategies) Chain() *Chain[CityQuery] {
	return NewChain[CityQuery](
		Func[CityQuery]("wikidata_known_qid", cs.knownQID),
		Func[CityQuery]("wikipedia_geosearch", cs.geoStrict),
		Func[CityQuery]("wikidata_name_search", cs.nameSearch),
		Func[CityQuery]("wikipedia_geosearch_best", cs.geoBest),
		Func[CityQuery]("wikidata_sparql_around", cs.around),
	)
}

func nameKey(q CityQuery) string {
	return NormalizeName(q.Name) + "|" + strings.ToUpper(q.ISO3)
}

func radiusOf(q CityQuery) float64 {
	if q.RadiusKm > 0 {
		return q.RadiusKm
	}
	return DefaultCityRadiusKm
}

func (cs *CityStrategies) knownQID(ctx context.Context, q CityQuery) (Population, bool) {
	if q.Name == "" {
		return Population{}, false
	}
	qid, ok := cs.byName.Get(ctx, nameKey(q))
	if !ok {
		return Population{}, false
	}
	e, err := cs.wd.Entity(ctx, qid)
	if err != nil || !e.Pop.Found() {
		return Population{}, false
	}
	c := candidate{e: e}
	return c.population(), true
}

// 拿到 geosearch 候选（已过滤、已打分、降序）
func (cs *CityStrategies) nearby(ctx context.Context, q CityQuery) []candidate {
	key := fmt.Sprintf("%s|%.3f|%.3f|%g", nameKey(q), q.Lat, q.Lon, radiusOf(q))
	if c, ok := cs.near.Get(ctx, key); ok {
		return c
	}
	hits, err := cs.wd.GeoSearch(ctx, q.Lat, q.Lon, radiusOf(q))
	if err != nil {
		logger.For("population").Debug("geosearch_failed", "name", q.Name, "err", err)
		return nil
	}
	cands := cs.candidates(ctx, hits, q, true)
	if ctx.Err() == nil {
		cs.near.Set(ctx, key, cands)
	}
	return cands
}

// 并发取实体并过滤：必须有坐标、是聚落、有人口
func (cs *CityStrategies) candidates(ctx context.Context, hits []PageHit, q CityQuery, strict bool) []candidate {
	want := NormalizeName(q.Name)
	slots := make([]*candidate, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, h := range hits {
		i, h := i, h
		g.Go(func() error {
			e, err := cs.wd.Entity(gctx, h.QID)
			if err != nil {
				logger.For("population").Debug("wikidata_entity_failed", "qid", h.QID, "err", err)
				return nil
			}
			if !e.HasCoord || !e.Settlement() || !e.Pop.Found() {
				return nil
			}
			c := candidate{
				e:      e,
				title:  h.Title,
				dist:   projection.Haversine(q.Lat, q.Lon, e.Lat, e.Lon),
				strict: strict,
			}
			c.nameMatch = want != "" && (NormalizeName(h.Title) == want || e.NameMatches(want))
			c.score = scoreCandidate(c)
			slots[i] = &c
			return nil
		})
	}
	_ = g.Wait()
	out := make([]candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// geosearch 最优候选足够可信：同名且 20km 内，或人口至少 1.5 万
func (cs *CityStrategies) geoStrict(ctx context.Context, q CityQuery) (Population, bool) {
	cands := cs.nearby(ctx, q)
	if len(cands) == 0 {
		return Population{}, false
	}
	best := cands[0]
	good := (best.nameMatch && best.dist <= 20) || *best.e.Pop.Value >= 15000
	if !good {
		return Population{}, false
	}
	cs.remember(ctx, q, best.e.QID)
	return best.population(), true
}

// 名称搜索只接受同名且 50km 内的结果
func (cs *CityStrategies) nameSearch(ctx context.Context, q CityQuery) (Population, bool) {
	if strings.TrimSpace(q.Name) == "" {
		return Population{}, false
	}
	hits, err := cs.wd.SearchByName(ctx, q.Name)
	if err != nil || len(hits) == 0 {
		return Population{}, false
	}
	for _, c := range cs.candidates(ctx, hits, q, false) {
		if c.nameMatch && c.dist <= 50 {
			cs.remember(ctx, q, c.e.QID)
			return c.population(), true
		}
	}
	return Population{}, false
}

// 名称搜索也落空时退回 geosearch 的最高分候选
func (cs *CityStrategies) geoBest(ctx context.Context, q CityQuery) (Population, bool) {
	cands := cs.nearby(ctx, q)
	if len(cands) == 0 {
		return Population{}, false
	}
	return cands[0].population(), true
}

func (cs *CityStrategies) around(ctx context.Context, q CityQuery) (Population, bool) {
	return cs.wd.Around(ctx, q.Lat, q.Lon, radiusOf(q), q.ISO3)
}

func (cs *CityStrategies) remember(ctx context.Context, q CityQuery, qid string) {
	if q.Name == "" || qid == "" {
		return
	}
	cs.byName.Set(ctx, nameKey(q), qid)
}
