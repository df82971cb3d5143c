package population

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// 文档注释：人口查询服务（国家 + 城市）
// 背景：结果（包括未命中）按查询键缓存；同一键的并发查询合并为一次上游访问。
// 约束：合并后的上游访问脱离发起者的取消信号（WithoutCancel + lookupTimeout），一个调用方断开不影响同键的其他等待者；超时的结果不写缓存。
type Service struct {
	countries *Chain[CountryQuery]
	cities    *Chain[CityQuery]

	countryCache *Memo[Population]
	cityCache    *Memo[Population]
	sf           singleflight.Group
}

const lookupTimeout = 30 * time.Second

// NewService：rc 为 nil 时只用进程内缓存
func NewService(client *Client, ep Endpoints, rc *redis.Client, ttl time.Duration) *Service {
	wd := NewWikidata(client, ep, rc, ttl)
	return NewServiceWith(
		NewChain[CountryQuery](NewWorldBank(client, ep.WorldBank, 1), NewWorldBank(client, ep.WorldBank, 5)),
		NewCityStrategies(wd, rc, ttl).Chain(),
		rc, ttl,
	)
}

// NewServiceFromEnv：按环境变量组装（POP_RPS、POP_CACHE_TTL_S、上游地址）
func NewServiceFromEnv(hc *http.Client, rc *redis.Client) *Service {
	return NewService(NewClientFromEnv(hc), EndpointsFromEnv(), rc, CacheTTLFromEnv())
}

// NewServiceWith：自定义策略链
func NewServiceWith(countries *Chain[CountryQuery], cities *Chain[CityQuery], rc *redis.Client, ttl time.Duration) *Service {
	return &Service{
		countries:    countries,
		cities:       cities,
		countryCache: NewMemo[Population]("pop:country:", rc, ttl),
		cityCache:    NewMemo[Population]("pop:city:", rc, ttl),
	}
}

// Country：国家人口；未命中返回 Value 为 nil 的结果
func (s *Service) Country(ctx context.Context, q CountryQuery) Population {
	key := CountryCode(q)
	if key == "" {
		return Population{}
	}
	return s.cached(ctx, s.countryCache, "country|"+key, func(ctx context.Context) (Population, bool) {
		return s.countries.Resolve(ctx, q)
	})
}

// City：城市人口；未命中返回 Value 为 nil 的结果
func (s *Service) City(ctx context.Context, q CityQuery) Population {
	key := fmt.Sprintf("%s|%s|%.3f|%.3f|%g", NormalizeName(q.Name), strings.ToUpper(q.ISO3), q.Lat, q.Lon, radiusOf(q))
	return s.cached(ctx, s.cityCache, "city|"+key, func(ctx context.Context) (Population, bool) {
		return s.cities.Resolve(ctx, q)
	})
}

func (s *Service) cached(ctx context.Context, m *Memo[Population], key string, fn func(context.Context) (Population, bool)) Population {
	if p, ok := m.Get(ctx, key); ok {
		return p
	}
	ch := s.sf.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		if p, ok := m.Get(sctx, key); ok {
			return p, nil
		}
		p, _ := fn(sctx)
		if sctx.Err() == nil {
			m.Set(sctx, key, p)
		}
		return p, nil
	})
	select {
	case <-ctx.Done():
		return Population{}
	case r := <-ch:
		return r.Val.(Population)
	}
}
