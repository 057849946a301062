package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/api/handlers"
	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/convert"
	"github.com/BaSui01/meshflow/fetch"
	"github.com/BaSui01/meshflow/internal/cache"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/internal/server"
	"github.com/BaSui01/meshflow/internal/telemetry"
	"github.com/BaSui01/meshflow/store"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 MeshFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 转换管线组件
	fetcher      *fetch.Client
	cacheManager *cache.Manager
	store        *store.Store
	convertSvc   *convert.Service

	// Handlers
	healthHandler      *handlers.HealthHandler
	convertHandler     *handlers.ConvertHandler
	conversionsHandler *handlers.ConversionsHandler
	manifestHandler    *handlers.ManifestHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测提供者
	otel *telemetry.Providers

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例。st 为 nil 时转换历史端点返回 503。
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers, st *store.Store) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
		store:      st,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("meshflow", s.logger)
	if s.store != nil {
		s.store.AttachMetrics(s.metricsCollector)
	}

	// 2. 初始化转换管线（下载客户端、缓存、转换服务）
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("cache_enabled", s.cacheManager != nil),
		zap.Bool("history_enabled", s.store != nil),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initPipeline 初始化转换管线组件
func (s *Server) initPipeline() error {
	// 上游模型下载客户端
	retry := fetch.DefaultRetryPolicy()
	retry.MaxRetries = s.cfg.Fetch.MaxRetries
	if s.cfg.Fetch.RetryDelay > 0 {
		retry.InitialDelay = s.cfg.Fetch.RetryDelay
	}

	s.fetcher = fetch.NewClient(fetch.Config{
		Timeout:   s.cfg.Fetch.Timeout,
		MaxBytes:  s.cfg.Fetch.MaxBytes,
		UserAgent: s.cfg.Fetch.UserAgent,
		Retry:     retry,
	}, s.logger)

	// Redis 缓存（可选，连接失败时降级为无缓存）
	if s.cfg.Redis.Enabled {
		manager, err := cache.NewManager(cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Convert.CacheTTL,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			s.logger.Warn("Redis not available, conversion cache disabled", zap.Error(err))
		} else {
			s.cacheManager = manager
		}
	}

	// 转换服务
	svc, err := convert.NewService(convert.Options{
		Config:  s.cfg.Convert,
		Fetcher: s.fetcher,
		Cache:   s.cacheManager,
		Store:   s.store,
		Metrics: s.metricsCollector,
		Logger:  s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create convert service: %w", err)
	}
	s.convertSvc = svc

	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	// 就绪检查覆盖实际依赖：store 为必需，缓存失联仅降级
	if s.store != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.store.Ping))
	}
	if s.cacheManager != nil {
		s.healthHandler.RegisterOptionalCheck(handlers.NewPingCheck("redis", s.cacheManager.Ping))
	}

	// 转换 handler（WebSocket 共享 CORS 白名单）
	s.convertHandler = handlers.NewConvertHandler(s.convertSvc, s.cfg.Server.CORSAllowedOrigins, s.logger)

	// 转换历史 handler
	s.conversionsHandler = handlers.NewConversionsHandler(s.store, s.cfg.Convert.HistoryLimit, s.logger)

	// 依赖清单校验 handler
	s.manifestHandler = handlers.NewManifestHandler(s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
		s.otel.SetSampleRate(newConfig.Telemetry.SampleRate)
	})

	// 单字段更新走 OnChange，采样率调整即时生效
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		if change.Path == "Telemetry.SampleRate" {
			s.otel.SetSampleRate(s.hotReloadManager.GetConfig().Telemetry.SampleRate)
		}
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器。CORS 来源复用服务器配置的第一项，
	// 通配符不下发到管理端点。
	origin := ""
	if len(s.cfg.Server.CORSAllowedOrigins) > 0 && s.cfg.Server.CORSAllowedOrigins[0] != "*" {
		origin = s.cfg.Server.CORSAllowedOrigins[0]
	}
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager, origin)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 转换 API 路由
	// /convert 为历史兼容路径，与 /api/v1/convert 等价
	// ========================================
	mux.HandleFunc("POST /convert", s.convertHandler.HandleConvert)
	mux.HandleFunc("POST /api/v1/convert", s.convertHandler.HandleConvert)
	mux.HandleFunc("POST /api/v1/convert/batch", s.convertHandler.HandleConvertBatch)
	mux.HandleFunc("GET /api/v1/convert/ws", s.convertHandler.HandleConvertWS)

	// ========================================
	// 转换历史路由
	// ========================================
	mux.HandleFunc("GET /api/v1/conversions", s.conversionsHandler.HandleListConversions)
	mux.HandleFunc("GET /api/v1/conversions/stats", s.conversionsHandler.HandleConversionStats)
	mux.HandleFunc("GET /api/v1/conversions/{id}", s.conversionsHandler.HandleGetConversion)

	// ========================================
	// 依赖清单校验路由
	// ========================================
	mux.HandleFunc("POST /api/v1/manifest/check", s.manifestHandler.HandleManifestCheck)

	// ========================================
	// 配置管理 API（需要独立认证保护）
	// 配置 API 是敏感的管理端点，必须经过认证中间件保护，
	// 不依赖全局中间件链的顺序，而是显式包装认证检查。
	// ========================================
	if s.configAPIHandler != nil {
		configAuth := config.NewConfigAPIMiddleware(s.getFirstAPIKey())
		mux.HandleFunc("/api/v1/config", configAuth.RequireAuth(s.configAPIHandler.HandleConfig))
		mux.HandleFunc("/api/v1/config/reload", configAuth.RequireAuth(s.configAPIHandler.HandleReload))
		mux.HandleFunc("/api/v1/config/fields", configAuth.RequireAuth(s.configAPIHandler.HandleFields))
		mux.HandleFunc("/api/v1/config/changes", configAuth.RequireAuth(s.configAPIHandler.HandleChanges))
		s.logger.Info("Configuration API registered with authentication")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	handler := s.buildMiddlewareChain(mux)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		MaxConns:        s.cfg.Server.MaxConns,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞），配置了证书与私钥时启用 HTTPS
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
		s.logger.Info("HTTPS server started", zap.Int("port", s.cfg.Server.HTTPPort))
		return nil
	}

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// buildMiddlewareChain 组装全局中间件链。
// APIKeyAuth 与 JWTAuth 仅在配置了相应凭据时加入，
// 默认配置下转换端点保持开放。
func (s *Server) buildMiddlewareChain(mux http.Handler) http.Handler {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}

	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}

	if s.cfg.Server.JWT.Enabled {
		middlewares = append(middlewares,
			JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger),
			TenantRateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}

	return Chain(mux, middlewares...)
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// getFirstAPIKey 返回配置中的第一个 API Key，用于配置 API 的独立认证。
// 如果未配置任何 API Key，返回空字符串（ConfigAPIMiddleware 会跳过认证检查）。
func (s *Server) getFirstAPIKey() string {
	if len(s.cfg.Server.APIKeys) > 0 {
		return s.cfg.Server.APIKeys[0]
	}
	return ""
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器（停止接收新转换请求）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭转换服务（等待批量工作池排空）
	if s.convertSvc != nil {
		s.convertSvc.Close()
	}

	// 5. 关闭缓存与存储连接，关闭前记录缓存命中情况
	if s.cacheManager != nil {
		statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if stats, err := s.cacheManager.GetStats(statsCtx); err == nil {
			s.logger.Info("Cache stats at shutdown",
				zap.Uint64("hits", stats.Hits),
				zap.Uint64("misses", stats.Misses),
				zap.Int64("keys", stats.Keys),
			)
		}
		cancel()
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache manager shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Store shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭遥测提供者
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 7. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
