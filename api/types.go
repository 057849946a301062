package api

import (
	"time"
)

// =============================================================================
// 响应信封类型
// =============================================================================

// Response 表示统一 API 响应信封。
// @Description 统一 API 响应结构
type Response struct {
	// 请求是否成功
	Success bool `json:"success" example:"true"`
	// 响应数据（成功时填充）
	Data interface{} `json:"data,omitempty"`
	// 错误信息（失败时填充）
	Error *ErrorInfo `json:"error,omitempty"`
	// 响应时间戳
	Timestamp time.Time `json:"timestamp"`
	// 用于请求跟踪的请求 ID
	RequestID string `json:"request_id,omitempty" example:"req-123"`
}

// ErrorInfo 表示响应中的错误详细信息。
// @Description API 错误结构
type ErrorInfo struct {
	// 错误代码
	Code string `json:"code" example:"INVALID_REQUEST"`
	// 人类可读的错误消息
	Message string `json:"message" example:"glb_url is required"`
	// 附加错误详情
	Details string `json:"details,omitempty"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
	// HTTP 状态码（服务端内部使用，不序列化）
	HTTPStatus int `json:"-"`
}

// =============================================================================
// 模型转换类型
// =============================================================================

// ConvertRequest 表示单个模型转换请求。
// @Description 模型转换请求结构
type ConvertRequest struct {
	// 源 GLB 资产的 URL
	GLBURL string `json:"glb_url" example:"https://assets.example.com/model.glb" binding:"required"`
	// 目标输出格式（stl 或 obj）
	OutputFormat string `json:"output_format" example:"stl" binding:"required"`
}

// ConvertBatchRequest 表示批量转换请求。
// @Description 批量转换请求结构
type ConvertBatchRequest struct {
	// 待转换条目列表
	Items []ConvertRequest `json:"items" binding:"required"`
}

// ConvertBatchItem 表示批量响应中单个条目的结果。
// 转换产物不随批量响应返回，启用缓存时重新请求同一 URL 与格式即可命中。
// @Description 批量转换条目结果
type ConvertBatchItem struct {
	// 条目在请求中的索引
	Index int `json:"index" example:"0"`
	// 该条目是否转换成功
	Success bool `json:"success" example:"true"`
	// 转换作业 ID
	JobID string `json:"job_id,omitempty" example:"5f1c9ab2-7e21-4a39-9b6c-2f4d8e1a03c7"`
	// 建议的下载文件名
	Filename string `json:"filename,omitempty" example:"converted_model_1700000000.stl"`
	// 输出 MIME 类型
	ContentType string `json:"content_type,omitempty" example:"model/stl"`
	// 输出字节数
	SizeBytes int64 `json:"size_bytes,omitempty" example:"684"`
	// 网格三角形数量
	TriangleCount int `json:"triangle_count,omitempty" example:"12"`
	// 网格顶点数量
	VertexCount int `json:"vertex_count,omitempty" example:"8"`
	// 是否命中结果缓存
	CacheHit bool `json:"cache_hit,omitempty"`
	// 失败时的错误信息
	Error *ErrorInfo `json:"error,omitempty"`
}

// =============================================================================
// WebSocket 转换类型
// =============================================================================

// ConvertWSEvent 表示 WebSocket 转换会话中的一帧。
// 进度帧仅携带 stage 与 job_id；终帧（done）附带产物元数据与
// Base64 编码的模型数据；错误帧（error）附带错误代码与消息。
// @Description WebSocket 转换事件帧
type ConvertWSEvent struct {
	// 当前阶段（queued、fetching、decoding、exporting、done、error）
	Stage string `json:"stage" example:"fetching"`
	// 转换作业 ID
	JobID string `json:"job_id" example:"5f1c9ab2-7e21-4a39-9b6c-2f4d8e1a03c7"`
	// 错误消息（仅错误帧）
	Error string `json:"error,omitempty"`
	// 错误代码（仅错误帧）
	Code string `json:"code,omitempty" example:"DECODE_ERROR"`
	// 建议的下载文件名（仅终帧）
	Filename string `json:"filename,omitempty" example:"converted_model_1700000000.stl"`
	// 输出 MIME 类型（仅终帧）
	ContentType string `json:"content_type,omitempty" example:"model/stl"`
	// 输出字节数（仅终帧）
	SizeBytes int64 `json:"size_bytes,omitempty" example:"684"`
	// 网格三角形数量（仅终帧）
	TriangleCount int `json:"triangle_count,omitempty" example:"12"`
	// 网格顶点数量（仅终帧）
	VertexCount int `json:"vertex_count,omitempty" example:"8"`
	// 是否命中结果缓存（仅终帧）
	CacheHit bool `json:"cache_hit,omitempty"`
	// Base64 编码的模型数据（仅终帧）
	Data string `json:"data,omitempty"`
}

// =============================================================================
// 依赖清单类型
// =============================================================================

// ManifestCheckRequest 表示 JSON 包装的清单校验请求。
// 校验端点同时接受纯文本清单体，此结构仅用于 JSON 形式。
// @Description 依赖清单校验请求结构
type ManifestCheckRequest struct {
	// 清单文本内容（name==version 行格式）
	Content string `json:"content" binding:"required"`
	// 已知包名列表（可选，用于拼写建议）
	KnownPackages []string `json:"known_packages,omitempty"`
}
