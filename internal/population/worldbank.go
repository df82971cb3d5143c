package population

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"globe-core/internal/logger"
)

// DefaultWorldBankURL：WDI 接口根地址
const DefaultWorldBankURL = "https://api.worldbank.org/v2"

// 数据集与 WDI 国家代码不一致的条目
var iso3Fix = map[string]string{"KOS": "XKX"}

type wbRow struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// 文档注释：World Bank SP.POP.TOTL 策略
// 背景：mrv=1 取最近一个年份，常见为 null（当年未发布）；mrv=5 取最近五年中第一个非空值。
// 约束：仅在拿到非空数值时算成功；出错或全空交给链上的下一个策略。
type WorldBank struct {
	client *Client
	base   string
	mrv    int
}

func NewWorldBank(client *Client, base string, mrv int) *WorldBank {
	if base == "" {
		base = DefaultWorldBankURL
	}
	if mrv <= 0 {
		mrv = 1
	}
	return &WorldBank{client: client, base: strings.TrimRight(base, "/"), mrv: mrv}
}

func (w *WorldBank) Name() string { return "worldbank_mrv" + strconv.Itoa(w.mrv) }

// CountryCode：查询键（ISO3 优先，否则名称），统一大写并修正已知差异
func CountryCode(q CountryQuery) string {
	key := strings.ToUpper(strings.TrimSpace(q.ISO3))
	if key == "" {
		key = strings.ToUpper(strings.TrimSpace(q.Name))
	}
	if fix, ok := iso3Fix[key]; ok {
		return fix
	}
	return key
}

func (w *WorldBank) URL(code string) string {
	return fmt.Sprintf("%s/country/%s/indicator/SP.POP.TOTL?format=json&per_page=%d&mrv=%d",
		w.base, url.PathEscape(code), w.mrv, w.mrv)
}

func (w *WorldBank) Resolve(ctx context.Context, q CountryQuery) (Population, bool) {
	code := CountryCode(q)
	if code == "" {
		return Population{}, false
	}
	var raw []json.RawMessage
	if err := w.client.GetJSON(ctx, w.URL(code), &raw); err != nil {
		logger.For("population").Debug("worldbank_fetch_failed", "code", code, "mrv", w.mrv, "err", err)
		return Population{}, false
	}
	// 出错时只有一个元素（message 数组）
	if len(raw) < 2 {
		return Population{}, false
	}
	var rows []wbRow
	if err := json.Unmarshal(raw[1], &rows); err != nil {
		return Population{}, false
	}
	for _, r := range rows {
		if r.Value == nil {
			continue
		}
		v := *r.Value
		p := Population{Value: &v}
		if y, err := strconv.Atoi(strings.TrimSpace(r.Date)); err == nil {
			p.Year = &y
		}
		return p, true
	}
	return Population{}, false
}
