// 包 utils：人口缓存用的 Redis 连接与本地证书工具
package utils

import (
	"net"
	"os"
	"strconv"

	"globe-core/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisConfig：人口二级缓存的连接参数
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisConfigFromEnv：REDIS_ENABLE=true 时读取 REDIS_HOST/PORT/PASS/DB，否则 ok=false
// 约束：REDIS_DB 非法或为负时取 0
func RedisConfigFromEnv() (cfg RedisConfig, ok bool) {
	if os.Getenv("REDIS_ENABLE") != "true" {
		return RedisConfig{}, false
	}
	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	cfg = RedisConfig{Addr: net.JoinHostPort(host, port), Password: os.Getenv("REDIS_PASS")}
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && n > 0 {
		cfg.DB = n
	}
	return cfg, true
}

// Open：地址为空返回 nil
func (c RedisConfig) Open() *redis.Client {
	if c.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}

// OpenRedisFromEnv：未启用时返回 nil，人口缓存只用进程内 map
func OpenRedisFromEnv() *redis.Client {
	cfg, ok := RedisConfigFromEnv()
	if !ok {
		return nil
	}
	logger.L().Debug("redis_env", "addr", cfg.Addr, "db", cfg.DB)
	return cfg.Open()
}
