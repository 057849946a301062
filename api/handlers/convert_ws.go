package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/api"
	"github.com/BaSui01/meshflow/convert"
	"github.com/BaSui01/meshflow/internal/channel"
	"github.com/BaSui01/meshflow/internal/ctxkeys"
	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🔌 WebSocket 转换进度流
// =============================================================================

// wsReadTimeout 约束客户端发送转换请求的等待时间
const wsReadTimeout = 30 * time.Second

// ConvertWSEvent 推送给客户端的进度帧，定义见 api.ConvertWSEvent。
// 终帧（done/error）携带 base64 编码的转换产物或错误详情。
type ConvertWSEvent = api.ConvertWSEvent

// HandleConvertWS 通过 WebSocket 执行一次转换：客户端发送一条
// ConvertRequest，服务端推送各阶段进度，最后以终帧返回产物。
// @Summary WebSocket 转换
// @Description 建立 WebSocket 连接，发送一条转换请求并接收进度与结果
// @Tags convert
// @Router /api/v1/convert/ws [get]
func (h *ConvertHandler) HandleConvertWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.wsOrigins),
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()

	// 读取唯一的一条转换请求
	readCtx, cancelRead := context.WithTimeout(ctx, wsReadTimeout)
	_, data, err := conn.Read(readCtx)
	cancelRead()
	if err != nil {
		h.logger.Debug("websocket read failed", zap.Error(err))
		return
	}

	var req ConvertRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.closeWithError(ctx, conn, "", types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err))
		return
	}
	if req.GLBURL == "" {
		h.closeWithError(ctx, conn, "", types.NewError(types.ErrInvalidRequest, "glb_url is required"))
		return
	}
	format, err := mesh.ParseFormat(req.OutputFormat)
	if err != nil {
		h.closeWithError(ctx, conn, "", err)
		return
	}

	// 预先生成任务 ID，以便按 ID 过滤进度事件
	jobID := uuid.New().String()
	sub, cancelSub := h.svc.Notifier().Subscribe()
	defer func() {
		if n := sub.Dropped(); n > 0 {
			h.logger.Debug("progress frames dropped for slow websocket reader",
				zap.String("job_id", jobID), zap.Int64("dropped", n))
		}
		cancelSub()
	}()

	type convertDone struct {
		output *convert.Output
		err    error
	}
	done := make(chan convertDone, 1)
	go func() {
		jobCtx := ctxkeys.WithJobID(ctx, jobID)
		output, convErr := h.svc.Convert(jobCtx, convert.Request{GLBURL: req.GLBURL, Format: format})
		done <- convertDone{output: output, err: convErr}
	}()

	for {
		select {
		case event := <-sub.Chan():
			if event.JobID != jobID {
				continue
			}
			// 终态帧由 done 分支统一发送
			if event.Stage == convert.StageDone || event.Stage == convert.StageFailed {
				continue
			}
			frame := ConvertWSEvent{Stage: string(event.Stage), JobID: jobID}
			if err := h.writeEvent(ctx, conn, frame); err != nil {
				return
			}

		case result := <-done:
			h.drainProgress(ctx, conn, sub, jobID)
			if result.err != nil {
				h.closeWithError(ctx, conn, jobID, result.err)
				return
			}
			final := ConvertWSEvent{
				Stage:         string(convert.StageDone),
				JobID:         jobID,
				Filename:      result.output.Filename,
				ContentType:   result.output.ContentType,
				SizeBytes:     int64(len(result.output.Data)),
				TriangleCount: result.output.TriangleCount,
				VertexCount:   result.output.VertexCount,
				CacheHit:      result.output.CacheHit,
				Data:          base64.StdEncoding.EncodeToString(result.output.Data),
			}
			if err := h.writeEvent(ctx, conn, final); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, "done")
			return

		case <-ctx.Done():
			return
		}
	}
}

// drainProgress 转发仍在队列中的进度帧，避免终帧越过中间阶段
func (h *ConvertHandler) drainProgress(ctx context.Context, conn *websocket.Conn, sub *channel.ElasticChannel[convert.Progress], jobID string) {
	for {
		event, ok := sub.TryReceive()
		if !ok {
			return
		}
		if event.JobID != jobID || event.Stage == convert.StageDone || event.Stage == convert.StageFailed {
			continue
		}
		frame := ConvertWSEvent{Stage: string(event.Stage), JobID: jobID}
		if err := h.writeEvent(ctx, conn, frame); err != nil {
			return
		}
	}
}

// writeEvent 序列化并发送一帧
func (h *ConvertHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event ConvertWSEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// originPatterns 将 CORS 白名单中的完整来源转为 AcceptOptions 的主机模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}

// closeWithError 发送错误终帧并正常关闭连接
func (h *ConvertHandler) closeWithError(ctx context.Context, conn *websocket.Conn, jobID string, err error) {
	info := toErrorInfo(err)
	frame := ConvertWSEvent{
		Stage: "error",
		JobID: jobID,
		Error: info.Message,
		Code:  info.Code,
	}
	if writeErr := h.writeEvent(ctx, conn, frame); writeErr != nil {
		h.logger.Debug("failed to send websocket error frame", zap.Error(writeErr))
	}
	conn.Close(websocket.StatusNormalClosure, "error")
}
