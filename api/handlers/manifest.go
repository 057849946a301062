package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/api"
	"github.com/BaSui01/meshflow/manifest"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 📋 依赖清单校验 Handler
// =============================================================================

// maxManifestBytes 约束上传清单的体积
const maxManifestBytes = 1 << 20

// ManifestHandler 依赖清单校验处理器
type ManifestHandler struct {
	logger *zap.Logger
}

// ManifestCheckRequest JSON 包装的清单校验请求，定义见 api.ManifestCheckRequest。
type ManifestCheckRequest = api.ManifestCheckRequest

// NewManifestHandler 创建清单校验处理器
func NewManifestHandler(logger *zap.Logger) *ManifestHandler {
	return &ManifestHandler{logger: logger}
}

// HandleManifestCheck 校验依赖清单
// @Summary 校验依赖清单
// @Description 对 name==version 格式的依赖清单做结构校验，返回问题报告。
// @Description 请求体可以是纯文本清单，也可以是 JSON 包装 {"content": "..."}
// @Tags manifest
// @Accept json
// @Accept plain
// @Produce json
// @Success 200 {object} Response{data=manifest.Report} "校验报告"
// @Failure 400 {object} Response "请求非法"
// @Router /api/v1/manifest/check [post]
func (h *ManifestHandler) HandleManifestCheck(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"request body is empty", h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBytes+1))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"failed to read request body", h.logger)
		return
	}
	if len(body) > maxManifestBytes {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, types.ErrInvalidRequest,
			"manifest exceeds the 1 MiB limit", h.logger)
		return
	}

	content := string(body)
	var opts manifest.Options

	// JSON 包装优先，纯文本作为回退
	if isJSONContentType(r.Header.Get("Content-Type")) {
		var req ManifestCheckRequest
		if err := json.Unmarshal(body, &req); err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				"invalid JSON body", h.logger)
			return
		}
		if req.Content == "" {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				"content is required", h.logger)
			return
		}
		content = req.Content
		opts.KnownPackages = req.KnownPackages
	}

	report := manifest.ParseString(content).BuildReport(opts)

	h.logger.Info("manifest checked",
		zap.Int("packages", report.Packages),
		zap.Int("errors", report.Errors),
		zap.Int("warnings", report.Warnings),
		zap.Bool("valid", report.Valid),
	)

	WriteSuccess(w, report)
}

func isJSONContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	return strings.EqualFold(mediaType, "application/json")
}
