package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 📜 转换历史 Handler
// =============================================================================

// maxHistoryLimit 约束单次历史查询的返回条数
const maxHistoryLimit = 500

// ConversionsHandler 转换历史查询处理器
type ConversionsHandler struct {
	store        *store.Store
	defaultLimit int
	logger       *zap.Logger
}

// ConversionStats 历史聚合统计响应
type ConversionStats struct {
	Total    int64                 `json:"total"`
	ByStatus []store.StatusSummary `json:"by_status"`
}

// NewConversionsHandler 创建转换历史处理器。store 为 nil 时所有
// 查询返回 503。
func NewConversionsHandler(st *store.Store, defaultLimit int, logger *zap.Logger) *ConversionsHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &ConversionsHandler{
		store:        st,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// HandleListConversions 查询最近的转换记录
// @Summary 转换历史
// @Description 按时间倒序返回最近的转换记录，可按状态过滤
// @Tags conversions
// @Produce json
// @Param status query string false "状态过滤（succeeded/failed）"
// @Param limit query int false "返回条数"
// @Success 200 {object} Response{data=[]store.ConversionRecord} "转换记录"
// @Failure 503 {object} Response "历史存储未配置"
// @Router /api/v1/conversions [get]
func (h *ConversionsHandler) HandleListConversions(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				"limit must be a positive integer", h.logger)
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var (
		records []store.ConversionRecord
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		status = strings.ToLower(status)
		if status != store.StatusSucceeded && status != store.StatusFailed {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				"status must be succeeded or failed", h.logger)
			return
		}
		records, err = h.store.ListByStatus(r.Context(), status, limit)
	} else {
		records, err = h.store.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list conversions", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"failed to list conversions", h.logger)
		return
	}

	WriteSuccess(w, records)
}

// HandleGetConversion 按 ID 查询单条转换记录
// @Summary 单条转换记录
// @Description 按记录 ID 查询转换详情
// @Tags conversions
// @Produce json
// @Param id path string true "记录 ID"
// @Success 200 {object} Response{data=store.ConversionRecord} "转换记录"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/conversions/{id} [get]
func (h *ConversionsHandler) HandleGetConversion(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}

	id := extractConversionID(r)
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"conversion ID is required", h.logger)
		return
	}

	record, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if typed, ok := err.(*types.Error); ok {
			WriteError(w, typed, h.logger)
			return
		}
		h.logger.Error("failed to load conversion record", zap.String("id", id), zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"failed to load conversion record", h.logger)
		return
	}

	WriteSuccess(w, record)
}

// HandleConversionStats 返回历史聚合统计
// @Summary 转换统计
// @Description 按状态聚合的转换计数
// @Tags conversions
// @Produce json
// @Success 200 {object} Response{data=ConversionStats} "聚合统计"
// @Router /api/v1/conversions/stats [get]
func (h *ConversionsHandler) HandleConversionStats(w http.ResponseWriter, r *http.Request) {
	if !h.ensureStore(w) {
		return
	}

	summaries, err := h.store.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to aggregate conversions", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			"failed to aggregate conversions", h.logger)
		return
	}

	stats := ConversionStats{ByStatus: summaries}
	for _, summary := range summaries {
		stats.Total += summary.Count
	}

	WriteSuccess(w, stats)
}

// ensureStore 历史存储未配置时统一返回 503
func (h *ConversionsHandler) ensureStore(w http.ResponseWriter) bool {
	if h.store == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"conversion history is not configured", h.logger)
		return false
	}
	return true
}

// extractConversionID extracts the record ID from the URL path.
// Supports both /api/v1/conversions/{id} (PathValue) and prefix trim.
func extractConversionID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/conversions/")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}
