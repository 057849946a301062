package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🩺 健康与就绪检查 Handler
// =============================================================================

// readyCheckTimeout 就绪检查的总时间预算
const readyCheckTimeout = 5 * time.Second

// HealthCheck 就绪检查接口，对应一个运行时依赖（数据库、缓存等）。
// Check 返回 nil 表示依赖可用。
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// registeredCheck 已注册的检查项。optional 标记该依赖失败时
// 服务仅降级而非不可用（转换主链路不依赖它）。
type registeredCheck struct {
	check    HealthCheck
	optional bool
}

// HealthHandler 健康与就绪检查处理器。
//
// 存活探针（/health、/healthz）只确认进程在运行，不触碰外部依赖；
// 就绪探针（/ready、/readyz）逐项执行注册的依赖检查：任一必需依赖
// 失败返回 503，仅可选依赖失败时整体状态为 degraded 但仍返回 200，
// 不会被编排系统摘除流量。
type HealthHandler struct {
	logger *zap.Logger

	mu     sync.RWMutex
	checks []registeredCheck
}

// HealthStatus 就绪检查响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项依赖检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// VersionInfo 构建版本信息响应
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// RegisterCheck 注册必需依赖的就绪检查，失败时服务判定为不可用
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check})
}

// RegisterOptionalCheck 注册可选依赖的就绪检查。失败只把整体状态降为
// degraded，不影响就绪判定（例如结果缓存失联后转换仍可工作）。
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, optional: true})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活探针
// @Summary 存活检查
// @Description 进程存活即返回 200，不执行任何依赖检查
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "服务存活"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// HandleHealthz 存活探针别名，兼容沿用 /healthz 约定的编排系统
// @Summary 存活检查（healthz 别名）
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "服务存活"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 就绪探针
// @Summary 就绪检查
// @Description 逐项执行依赖检查并记录各项耗时；必需依赖失败返回 503，仅可选依赖失败时状态为 degraded
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "healthy 或 degraded"
// @Failure 503 {object} HealthStatus "必需依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var requiredDown, optionalDown bool
	for _, rc := range checks {
		start := time.Now()
		err := rc.check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			if rc.optional {
				optionalDown = true
			} else {
				requiredDown = true
			}

			h.logger.Warn("readiness check failed",
				zap.String("check", rc.check.Name()),
				zap.Bool("optional", rc.optional),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
		}
		status.Checks[rc.check.Name()] = result
	}

	code := http.StatusOK
	switch {
	case requiredDown:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case optionalDown:
		status.Status = "degraded"
	}

	WriteJSON(w, code, status)
}

// HandleVersion 返回构建版本信息
// @Summary 版本信息
// @Description 返回编译时注入的版本号、构建时间与 git 提交哈希
// @Tags health
// @Produce json
// @Success 200 {object} VersionInfo "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, VersionInfo{
			Version:   version,
			BuildTime: buildTime,
			GitCommit: gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置依赖检查实现
// =============================================================================

// PingCheck 基于 ping 函数的依赖检查，适配 store、缓存等暴露
// Ping(ctx) 方法的客户端。
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建 ping 型依赖检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

// Name 返回检查名称
func (c *PingCheck) Name() string { return c.name }

// Check 执行一次 ping
func (c *PingCheck) Check(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}
