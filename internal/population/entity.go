package population

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 聚落类：城市、市镇、大城市、自治市等（P31 直接命中即可）
var okClasses = map[string]bool{
	"Q486972":  true,
	"Q515":     true,
	"Q1549591": true,
	"Q200250":  true,
	"Q15284":   true,
}

// 行政区划、国家等面状实体，人口口径与城市不一致
var badClasses = map[string]bool{
	"Q13218630": true,
	"Q132192":   true,
	"Q13220204": true,
	"Q19953632": true,
}

var yearRe = regexp.MustCompile(`\d{4}`)

// 文档注释：解析后的 Wikidata 实体（只保留人口查询需要的字段）
type Entity struct {
	QID      string     `json:"qid"`
	Labels   []string   `json:"labels,omitempty"`
	Classes  []string   `json:"classes,omitempty"`
	HasCoord bool       `json:"has_coord"`
	Lat      float64    `json:"lat"`
	Lon      float64    `json:"lon"`
	Pop      Population `json:"pop"`
}

// Settlement：至少一个聚落类且不含排除类
func (e Entity) Settlement() bool {
	ok := false
	for _, c := range e.Classes {
		if badClasses[c] {
			return false
		}
		if okClasses[c] {
			ok = true
		}
	}
	return ok
}

// NameMatches：任一标签归一化后与 want 相同
func (e Entity) NameMatches(want string) bool {
	if want == "" {
		return false
	}
	for _, l := range e.Labels {
		if NormalizeName(l) == want {
			return true
		}
	}
	return false
}

// NormalizeName：NFD 分解后去掉组合符号，小写并去首尾空白
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

type rawEntity struct {
	Labels map[string]struct {
		Value string `json:"value"`
	} `json:"labels"`
	Claims map[string][]rawStatement `json:"claims"`
}

type rawStatement struct {
	Rank       string               `json:"rank"`
	Mainsnak   rawSnak              `json:"mainsnak"`
	Qualifiers map[string][]rawSnak `json:"qualifiers"`
}

type rawSnak struct {
	Datavalue struct {
		Value json.RawMessage `json:"value"`
	} `json:"datavalue"`
}

func parseEntity(qid string, raw rawEntity) Entity {
	e := Entity{QID: qid}
	for _, l := range raw.Labels {
		if l.Value != "" {
			e.Labels = append(e.Labels, l.Value)
		}
	}
	for _, st := range raw.Claims["P31"] {
		var v struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(st.Mainsnak.Datavalue.Value, &v) == nil && v.ID != "" {
			e.Classes = append(e.Classes, v.ID)
		}
	}
	if cs := raw.Claims["P625"]; len(cs) > 0 {
		var v struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if json.Unmarshal(cs[0].Mainsnak.Datavalue.Value, &v) == nil && v.Latitude != nil && v.Longitude != nil {
			e.HasCoord = true
			e.Lat, e.Lon = *v.Latitude, *v.Longitude
		}
	}
	e.Pop = bestPopulation(raw.Claims["P1082"])
	return e
}

// 文档注释：在多条 P1082 陈述中挑一条
// 约束：rank（preferred > normal > deprecated）优先，其次年份，最后数值
func bestPopulation(sts []rawStatement) Population {
	type cand struct {
		rank  int
		year  int
		value float64
	}
	var best *cand
	for _, st := range sts {
		v, ok := parseAmount(st.Mainsnak.Datavalue.Value)
		if !ok {
			continue
		}
		c := cand{rank: rankOf(st.Rank), value: v}
		if qs := st.Qualifiers["P585"]; len(qs) > 0 {
			c.year = timeYear(qs[0].Datavalue.Value)
		}
		if best == nil || c.rank > best.rank ||
			(c.rank == best.rank && (c.year > best.year || (c.year == best.year && c.value > best.value))) {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return Population{}
	}
	p := Population{Value: &best.value}
	if best.year > 0 {
		y := best.year
		p.Year = &y
	}
	return p
}

func rankOf(r string) int {
	switch r {
	case "preferred":
		return 2
	case "normal":
		return 1
	}
	return 0
}

// 数量值为 {"amount":"+123"}；个别实体直接给数字
func parseAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var q struct {
		Amount string `json:"amount"`
	}
	if json.Unmarshal(raw, &q) == nil && q.Amount != "" {
		f, err := strconv.ParseFloat(strings.TrimPrefix(q.Amount, "+"), 64)
		return f, err == nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, true
	}
	return 0, false
}

func timeYear(raw json.RawMessage) int {
	var t struct {
		Time string `json:"time"`
	}
	if json.Unmarshal(raw, &t) != nil {
		return 0
	}
	return yearOf(t.Time)
}

func yearOf(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}
