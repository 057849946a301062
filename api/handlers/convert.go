package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/api"
	"github.com/BaSui01/meshflow/convert"
	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🔄 模型转换 Handler
// =============================================================================

// ConvertHandler 模型转换处理器
type ConvertHandler struct {
	svc       *convert.Service
	wsOrigins []string
	logger    *zap.Logger
}

// ConvertRequest is a type alias for api.ConvertRequest to avoid duplicate
// definitions. The canonical definition lives in api.ConvertRequest (api/types.go).
type ConvertRequest = api.ConvertRequest

// ConvertBatchRequest 批量转换请求体，定义见 api.ConvertBatchRequest。
type ConvertBatchRequest = api.ConvertBatchRequest

// ConvertBatchItem 批量转换的单条结果，定义见 api.ConvertBatchItem。
type ConvertBatchItem = api.ConvertBatchItem

// NewConvertHandler 创建转换处理器。wsOrigins 是允许建立 WebSocket
// 连接的跨域来源（与 CORS 白名单一致），为空时仅允许同源。
func NewConvertHandler(svc *convert.Service, wsOrigins []string, logger *zap.Logger) *ConvertHandler {
	return &ConvertHandler{
		svc:       svc,
		wsOrigins: wsOrigins,
		logger:    logger,
	}
}

// HandleConvert 处理单次转换请求
// @Summary 转换 GLB 模型
// @Description 下载 glb_url 指向的 GLB 资产并转换为 STL 或 OBJ，以附件形式返回
// @Tags convert
// @Accept json
// @Produce octet-stream
// @Param request body ConvertRequest true "转换请求"
// @Success 200 {file} binary "转换后的模型文件"
// @Failure 400 {object} Response "请求非法、GLB 损坏或场景为空"
// @Failure 502 {object} Response "上游资产拉取失败"
// @Failure 504 {object} Response "上游资产拉取超时"
// @Router /convert [post]
func (h *ConvertHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	convReq, ok := h.buildRequest(w, req)
	if !ok {
		return
	}

	output, err := h.svc.Convert(r.Context(), convReq)
	if err != nil {
		h.writeConvertError(w, err)
		return
	}

	// 以流式附件返回转换结果
	w.Header().Set("Content-Type", output.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", output.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(output.Data)))
	w.Header().Set("X-Job-ID", output.ID)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(output.Data); err != nil {
		h.logger.Warn("failed to stream conversion result",
			zap.String("job_id", output.ID),
			zap.Error(err),
		)
	}
}

// HandleConvertBatch 处理批量转换请求
// @Summary 批量转换 GLB 模型
// @Description 并发转换多个 GLB 资产，逐条返回结果状态
// @Tags convert
// @Accept json
// @Produce json
// @Param request body ConvertBatchRequest true "批量转换请求"
// @Success 200 {object} Response{data=[]ConvertBatchItem} "逐条转换结果"
// @Failure 400 {object} Response "请求非法或批量超限"
// @Router /api/v1/convert/batch [post]
func (h *ConvertHandler) HandleConvertBatch(w http.ResponseWriter, r *http.Request) {
	var req ConvertBatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	reqs := make([]convert.Request, 0, len(req.Items))
	for i, item := range req.Items {
		if item.GLBURL == "" {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
				fmt.Sprintf("items[%d]: glb_url is required", i), h.logger)
			return
		}
		format, err := mesh.ParseFormat(item.OutputFormat)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrUnsupportedFormat,
				fmt.Sprintf("items[%d]: unsupported output format: %s", i, item.OutputFormat), h.logger)
			return
		}
		reqs = append(reqs, convert.Request{GLBURL: item.GLBURL, Format: format})
	}

	results, err := h.svc.ConvertBatch(r.Context(), reqs)
	if err != nil {
		h.writeConvertError(w, err)
		return
	}

	items := make([]ConvertBatchItem, len(results))
	for i, result := range results {
		item := ConvertBatchItem{Index: result.Index}
		if result.Err != nil {
			item.Error = toErrorInfo(result.Err)
		} else {
			item.Success = true
			item.JobID = result.Output.ID
			item.Filename = result.Output.Filename
			item.ContentType = result.Output.ContentType
			item.SizeBytes = int64(len(result.Output.Data))
			item.TriangleCount = result.Output.TriangleCount
			item.VertexCount = result.Output.VertexCount
			item.CacheHit = result.Output.CacheHit
		}
		items[i] = item
	}

	WriteSuccess(w, items)
}

// buildRequest 校验请求体并解析输出格式
func (h *ConvertHandler) buildRequest(w http.ResponseWriter, req ConvertRequest) (convert.Request, bool) {
	if req.GLBURL == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"glb_url is required", h.logger)
		return convert.Request{}, false
	}
	if req.OutputFormat == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"output_format is required", h.logger)
		return convert.Request{}, false
	}

	format, err := mesh.ParseFormat(req.OutputFormat)
	if err != nil {
		h.writeConvertError(w, err)
		return convert.Request{}, false
	}

	return convert.Request{GLBURL: req.GLBURL, Format: format}, true
}

// writeConvertError 将转换管线错误写为 JSON 响应
func (h *ConvertHandler) writeConvertError(w http.ResponseWriter, err error) {
	if typed, ok := err.(*types.Error); ok {
		WriteError(w, typed, h.logger)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
		fmt.Sprintf("Internal server error during conversion: %v", err), h.logger)
}

// toErrorInfo 将任意错误转为响应中的错误信息
func toErrorInfo(err error) *ErrorInfo {
	if typed, ok := err.(*types.Error); ok {
		status := typed.HTTPStatus
		if status == 0 {
			status = mapErrorCodeToHTTPStatus(typed.Code)
		}
		return &ErrorInfo{
			Code:       string(typed.Code),
			Message:    typed.Message,
			Retryable:  typed.Retryable,
			HTTPStatus: status,
		}
	}
	return &ErrorInfo{
		Code:       string(types.ErrInternalError),
		Message:    err.Error(),
		HTTPStatus: http.StatusInternalServerError,
	}
}
