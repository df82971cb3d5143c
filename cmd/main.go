// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"globe-core/internal/api"
	"globe-core/internal/borders"
	"globe-core/internal/cities"
	"globe-core/internal/countries"
	"globe-core/internal/geodata"
	"globe-core/internal/logger"
	"globe-core/internal/metrics"
	"globe-core/internal/middleware"
	"globe-core/internal/population"
	"globe-core/internal/revgeo"
	"globe-core/internal/terrain"
	"globe-core/internal/utils"
	"globe-core/internal/viewpoint"
	"globe-core/internal/water"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	apiBase = "/" + strings.Trim(apiBase, "/")
	l.Debug("config_api_base", "base", apiBase)
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		defer rc.Close()
	}

	// 文档注释：数据集注册表（进程内唯一）
	// 背景：国家、城市、湖泊、河流、国界各数据集按名称懒加载，所有构建器与查询共享同一份解码结果。
	reg := geodata.NewRegistry(geodata.NewFetcher(nil))
	countryStore := countries.NewStore(reg)
	cityStore := cities.NewStore(reg)
	pick := revgeo.NewOrchestrator(countryStore, cityStore)

	vp := viewpoint.OpenFromEnv()
	defer vp.Close()

	pop := population.NewServiceFromEnv(nil, rc)

	// 预热拾取依赖的数据集；失败只记日志，首次请求时重试
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := countryStore.Load(ctx); err != nil {
			l.Warn("countries_warmup_failed", "err", err)
		}
		if ix, err := cityStore.Index(ctx); err != nil {
			l.Warn("cities_warmup_failed", "err", err)
		} else {
			l.Info("cities_index_ready", "count", ix.Len())
		}
	}()

	apiMux := api.BuildRoutes(api.Deps{
		Terrain:    terrain.NewBuilder(nil),
		Water:      water.NewBuilder(reg),
		Borders:    borders.NewBuilder(reg),
		Cities:     cityStore,
		Pick:       pick,
		Population: pop,
		Viewpoint:  vp,
	})

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.HandleFunc(apiBase+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("cache-control", "no-store")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", http.FileServer(http.Dir(ui)))

	// NOTE: 向前端暴露 API 基础路径，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'\n"))
		_, _ = w.Write([]byte("window.__VIEWPOINT__=" + boolJS(vp.Enabled()) + "\n"))
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		l.Info("shutdown_begin")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	var err error
	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if e := utils.EnsureSelfSignedCert(certPath, keyPath, "globe.local"); e != nil {
			l.Error("tls_cert_error", "err", e)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}

func boolJS(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
