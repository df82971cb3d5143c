package population

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrStatus：上游返回非 2xx
var ErrStatus = errors.New("population: upstream status")

const userAgent = "globe-core/1.0 (population lookup)"

// 文档注释：限速 JSON 客户端
// 背景：Wikidata/Wikipedia 对匿名请求有频率限制，所有上游请求共用一个令牌桶。
// 约束：Wait 受 ctx 取消；响应体最多读取 8MB。
type Client struct {
	hc  *http.Client
	lim *rate.Limiter
}

// NewClient：rps<=0 表示不限速
func NewClient(hc *http.Client, rps float64) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{hc: hc, lim: lim}
}

// NewClientFromEnv：读取 POP_RPS（默认 5）
func NewClientFromEnv(hc *http.Client) *Client {
	rps := 5.0
	if s := os.Getenv("POP_RPS"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil {
			rps = f
		}
	}
	return NewClient(hc, rps)
}

// GetJSON：GET 并解码 JSON
func (c *Client) GetJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// PostFormJSON：表单 POST 并解码 JSON
func (c *Client) PostFormJSON(ctx context.Context, u string, form url.Values, accept string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.lim != nil {
		if err := c.lim.Wait(req.Context()); err != nil {
			return err
		}
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, req.URL.Host)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out)
}
