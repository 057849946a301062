// Copyright (c) MeshFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 MeshFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 MeshFlow 所有 HTTP 端点的请求处理逻辑，
包括模型转换、转换历史查询、依赖清单校验、健康检查以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - ConvertHandler     — GLB 转换处理器，支持单次、批量与 WebSocket 进度流
  - ConversionsHandler — 转换历史查询与统计（/api/v1/conversions）
  - ManifestHandler    — 依赖清单校验（/api/v1/manifest/check）
  - HealthHandler      — 存活与就绪探针（/health, /healthz, /ready），支持 degraded 状态
  - Response           — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo          — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter     — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck        — 可插拔就绪检查接口，PingCheck 适配 store/缓存客户端

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 转换产物流式下载：Content-Disposition 附件 + X-Job-ID 头
  - WebSocket 进度推送：queued/fetching/decoding/exporting/done 各阶段事件
  - 可扩展就绪检查：RegisterCheck（必需依赖）/ RegisterOptionalCheck（失败仅降级）
*/
package handlers
