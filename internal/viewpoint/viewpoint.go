// 包 viewpoint：按客户端 IP 推算地球初始朝向
package viewpoint

import (
	"errors"
	"net"
	"os"
	"strings"

	"globe-core/internal/logger"
	"globe-core/internal/projection"

	"github.com/golang/geo/r3"
	"github.com/oschwald/geoip2-golang"
)

var (
	// ErrDisabled：未配置 GeoLite2-City 数据库
	ErrDisabled = errors.New("viewpoint: geoip database not configured")
	// ErrNotFound：IP 无定位信息（私网地址或库中无坐标）
	ErrNotFound = errors.New("viewpoint: no location for ip")
)

// View：初始视点（经纬度 + 单位球上的锚点）
type View struct {
	Lon     float64   `json:"lon"`
	Lat     float64   `json:"lat"`
	Country string    `json:"country,omitempty"`
	City    string    `json:"city,omitempty"`
	Anchor  r3.Vector `json:"-"`
}

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// 文档注释：视点定位器
// 背景：读取本地 mmdb 构建查询服务；库文件缺失时整个功能关闭，不影响其它接口。
type Locator struct {
	db cityReader
}

// Open：打开 GeoLite2-City 数据库；path 为空返回禁用状态的定位器
func Open(path string) (*Locator, error) {
	if strings.TrimSpace(path) == "" {
		return &Locator{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return &Locator{}, err
	}
	return &Locator{db: db}, nil
}

// OpenFromEnv：读取 GEOIP_CITY_PATH；打开失败只记日志
func OpenFromEnv() *Locator {
	path := os.Getenv("GEOIP_CITY_PATH")
	l, err := Open(path)
	if err != nil {
		logger.For("viewpoint").Warn("viewpoint_db_open_failed", "path", path, "err", err)
	} else if l.Enabled() {
		logger.For("viewpoint").Info("viewpoint_db_ready", "path", path)
	}
	return l
}

func (l *Locator) Enabled() bool { return l != nil && l.db != nil }

// Locate：IP → 视点
func (l *Locator) Locate(ipStr string) (*View, error) {
	if !l.Enabled() {
		return nil, ErrDisabled
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return nil, ErrNotFound
	}
	rec, err := l.db.City(ip)
	if err != nil {
		return nil, err
	}
	lat, lon := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lon == 0 {
		return nil, ErrNotFound
	}
	return &View{
		Lon:     lon,
		Lat:     lat,
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
		Anchor:  projection.LonLatToLocal(lon, lat, 1),
	}, nil
}

func (l *Locator) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.db.Close()
}
