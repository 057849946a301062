// Copyright (c) MeshFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 MeshFlow 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 convert、fetch、gltf、
mesh、api 等上层模块提供统一的类型契约。所有跨包共享的错误码与 Context
传播工具均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Source 标记

# 主要能力

  - 错误码分组：请求与转换类（INVALID_REQUEST、DECODE_ERROR、EMPTY_MESH 等）、
    上游拉取类（FETCH_TIMEOUT、UPSTREAM_ERROR、ASSET_TOO_LARGE）、
    访问与基础设施类（RATE_LIMITED、INTERNAL_ERROR 等）
  - 错误工具链：NewError + WithCause / WithHTTPStatus / WithRetryable / WithSource
  - 错误检查：IsRetryable / GetErrorCode（兼容 errors.Unwrap 链）
  - Context 传播：WithTenantID / WithUserID / WithRoles（JWT 认证后注入）
*/
package types
