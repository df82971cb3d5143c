package population

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"globe-core/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Endpoints：上游地址，测试时整体替换为 httptest
type Endpoints struct {
	Wikipedia   string // MediaWiki API（geosearch、pageprops）
	WikidataAPI string // wbsearchentities
	EntityData  string // Special:EntityData/{QID}.json 的目录
	SPARQL      string
	WorldBank   string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Wikipedia:   "https://en.wikipedia.org/w/api.php",
		WikidataAPI: "https://www.wikidata.org/w/api.php",
		EntityData:  "https://www.wikidata.org/wiki/Special:EntityData",
		SPARQL:      "https://query.wikidata.org/sparql",
		WorldBank:   DefaultWorldBankURL,
	}
}

// EndpointsFromEnv：WIKIPEDIA_API / WIKIDATA_API / WIKIDATA_ENTITY / WIKIDATA_SPARQL / WORLDBANK_API 覆盖默认值
func EndpointsFromEnv() Endpoints {
	ep := DefaultEndpoints()
	for _, o := range []struct {
		key string
		dst *string
	}{
		{"WIKIPEDIA_API", &ep.Wikipedia},
		{"WIKIDATA_API", &ep.WikidataAPI},
		{"WIKIDATA_ENTITY", &ep.EntityData},
		{"WIKIDATA_SPARQL", &ep.SPARQL},
		{"WORLDBANK_API", &ep.WorldBank},
	} {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
	return ep
}

const (
	geosearchLimit = 8
	maxQIDs        = 6
	// MediaWiki 对 gsradius 的上限（米）
	maxGeoRadiusM = 10000
	sparqlTimeout = 8 * time.Second
)

var (
	qidRe  = regexp.MustCompile(`^Q[0-9]+$`)
	iso3Re = regexp.MustCompile(`^[A-Z]{3}$`)
)

// PageHit：geosearch 命中的条目（标题 + 对应 QID）
type PageHit struct {
	Title string
	QID   string
}

// 文档注释：Wikipedia / Wikidata 访问层
// 背景：实体解析结果按 QID 缓存（可落 Redis），同一实体在 geosearch 与名称搜索之间复用。
// 约束：所有请求经由共享的限速客户端；单个实体失败不影响其它候选。
type Wikidata struct {
	client   *Client
	ep       Endpoints
	entities *Memo[Entity]
}

func NewWikidata(client *Client, ep Endpoints, rc *redis.Client, ttl time.Duration) *Wikidata {
	return &Wikidata{client: client, ep: ep, entities: NewMemo[Entity]("pop:entity:", rc, ttl)}
}

// Entity：按 QID 取实体（带缓存）
func (w *Wikidata) Entity(ctx context.Context, qid string) (Entity, error) {
	if !qidRe.MatchString(qid) {
		return Entity{}, fmt.Errorf("invalid qid %q", qid)
	}
	if e, ok := w.entities.Get(ctx, qid); ok {
		return e, nil
	}
	var doc struct {
		Entities map[string]rawEntity `json:"entities"`
	}
	u := strings.TrimRight(w.ep.EntityData, "/") + "/" + qid + ".json"
	if err := w.client.GetJSON(ctx, u, &doc); err != nil {
		return Entity{}, err
	}
	raw, ok := doc.Entities[qid]
	if !ok {
		return Entity{}, fmt.Errorf("entity %s missing from response", qid)
	}
	e := parseEntity(qid, raw)
	w.entities.Set(ctx, qid, e)
	return e, nil
}

// 文档注释：坐标附近的 Wikipedia 条目及其 QID
// 返回：按 geosearch 距离顺序，QID 去重，最多 6 个
func (w *Wikidata) GeoSearch(ctx context.Context, lat, lon, radiusKm float64) ([]PageHit, error) {
	r := int(math.Round(radiusKm * 1000))
	if r > maxGeoRadiusM {
		r = maxGeoRadiusM
	}
	if r < 10 {
		r = 10
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "geosearch")
	q.Set("gscoord", strconv.FormatFloat(lat, 'f', 6, 64)+"|"+strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("gsradius", strconv.Itoa(r))
	q.Set("gslimit", strconv.Itoa(geosearchLimit))
	q.Set("format", "json")
	var gs struct {
		Query struct {
			Geosearch []struct {
				PageID int    `json:"pageid"`
				Title  string `json:"title"`
			} `json:"geosearch"`
		} `json:"query"`
	}
	if err := w.client.GetJSON(ctx, w.ep.Wikipedia+"?"+q.Encode(), &gs); err != nil {
		return nil, err
	}
	if len(gs.Query.Geosearch) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(gs.Query.Geosearch))
	for _, g := range gs.Query.Geosearch {
		ids = append(ids, strconv.Itoa(g.PageID))
	}
	pp := url.Values{}
	pp.Set("action", "query")
	pp.Set("prop", "pageprops")
	pp.Set("ppprop", "wikibase_item")
	pp.Set("pageids", strings.Join(ids, "|"))
	pp.Set("format", "json")
	var props struct {
		Query struct {
			Pages map[string]struct {
				PageProps struct {
					Item string `json:"wikibase_item"`
				} `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := w.client.GetJSON(ctx, w.ep.Wikipedia+"?"+pp.Encode(), &props); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []PageHit
	for i, g := range gs.Query.Geosearch {
		qid := props.Query.Pages[ids[i]].PageProps.Item
		if qid == "" || seen[qid] {
			continue
		}
		seen[qid] = true
		out = append(out, PageHit{Title: g.Title, QID: qid})
		if len(out) == maxQIDs {
			break
		}
	}
	return out, nil
}

// SearchByName：wbsearchentities 英文名称搜索
func (w *Wikidata) SearchByName(ctx context.Context, name string) ([]PageHit, error) {
	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", name)
	q.Set("language", "en")
	q.Set("limit", strconv.Itoa(maxQIDs))
	q.Set("format", "json")
	var res struct {
		Search []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"search"`
	}
	if err := w.client.GetJSON(ctx, w.ep.WikidataAPI+"?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	out := make([]PageHit, 0, len(res.Search))
	for _, s := range res.Search {
		if qidRe.MatchString(s.ID) {
			out = append(out, PageHit{Title: s.Label, QID: s.ID})
		}
	}
	return out, nil
}

// 文档注释：SPARQL wikibase:around 查询
// 背景：只在前面的快速路径都落空时使用；先 POST（8 秒超时），失败再用 GET 重试一次。
// 返回：最近年份、最大人口的聚落；无结果时 ok=false
func (w *Wikidata) Around(ctx context.Context, lat, lon, radiusKm float64, iso3 string) (Population, bool) {
	query := aroundQuery(lat, lon, radiusKm, iso3)
	var res struct {
		Results struct {
			Bindings []map[string]struct {
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"results"`
	}
	pctx, cancel := context.WithTimeout(ctx, sparqlTimeout)
	err := w.client.PostFormJSON(pctx, w.ep.SPARQL, url.Values{"query": {query}}, "application/sparql-results+json", &res)
	cancel()
	if err != nil {
		logger.For("population").Debug("sparql_post_failed", "err", err)
		if ctx.Err() != nil {
			return Population{}, false
		}
		u := w.ep.SPARQL + "?" + url.Values{"format": {"json"}, "query": {query}}.Encode()
		if err := w.client.GetJSON(ctx, u, &res); err != nil {
			logger.For("population").Debug("sparql_get_failed", "err", err)
			return Population{}, false
		}
	}
	if len(res.Results.Bindings) == 0 {
		return Population{}, false
	}
	b := res.Results.Bindings[0]
	v, err := strconv.ParseFloat(b["population"].Value, 64)
	if err != nil {
		return Population{}, false
	}
	p := Population{Value: &v}
	if y := yearOf(b["pointInTime"].Value); y > 0 {
		p.Year = &y
	}
	if item := b["item"].Value; item != "" {
		p.QID = item[strings.LastIndex(item, "/")+1:]
	}
	return p, true
}

func aroundQuery(lat, lon, radiusKm float64, iso3 string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ?item ?population ?pointInTime WHERE {\n")
	sb.WriteString("  SERVICE wikibase:around {\n")
	sb.WriteString("    ?item wdt:P625 ?loc .\n")
	fmt.Fprintf(&sb, "    bd:serviceParam wikibase:center \"Point(%s %s)\"^^geo:wktLiteral .\n",
		strconv.FormatFloat(lon, 'f', 6, 64), strconv.FormatFloat(lat, 'f', 6, 64))
	fmt.Fprintf(&sb, "    bd:serviceParam wikibase:radius \"%s\" .\n", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	sb.WriteString("  }\n")
	sb.WriteString("  VALUES ?okClass {")
	for _, c := range sortedKeys(okClasses) {
		sb.WriteString(" wd:" + c)
	}
	sb.WriteString(" }\n")
	sb.WriteString("  ?item wdt:P31/wdt:P279* ?okClass .\n")
	for _, c := range sortedKeys(badClasses) {
		fmt.Fprintf(&sb, "  FILTER NOT EXISTS { ?item wdt:P31 wd:%s }\n", c)
	}
	if iso3 = strings.ToUpper(iso3); iso3Re.MatchString(iso3) {
		fmt.Fprintf(&sb, "  ?item wdt:P17 ?country . ?country wdt:P298 \"%s\" .\n", iso3)
	}
	sb.WriteString("  ?item p:P1082 ?st . ?st ps:P1082 ?population .\n")
	sb.WriteString("  OPTIONAL { ?st pq:P585 ?pointInTime }\n")
	sb.WriteString("} ORDER BY DESC(?pointInTime) DESC(?population) LIMIT 1")
	return sb.String()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
