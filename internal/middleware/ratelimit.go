// 包 middleware：入口限流
package middleware

import (
	"net/http"
	"os"
	"strconv"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"

	"golang.org/x/time/rate"
)

// 文档注释：令牌桶限流中间件（每秒）
// 背景：掩膜构建占用大量 CPU，上游数据源也有频率限制；在流量峰值时对入口限速，按环境变量开关与速率配置。
// 约束：不做队列排队，超限直接返回 429；桶容量等于每秒速率，允许一秒内的突发。
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 200
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			qps = n
		}
	}
	logger.L().Info("rate_limit_enabled", "qps", qps)
	return Limit(next, rate.NewLimiter(rate.Limit(qps), qps))
}

// Limit：使用给定令牌桶包装处理器
func Limit(next http.Handler, lim *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
