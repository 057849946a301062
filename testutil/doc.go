// Copyright 2026 MeshFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 MeshFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与集成测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和测试数据。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor，
    支持超时轮询等待条件满足
  - 上游桩: AssetServer 启动返回固定模型字节的 httptest 服务器
  - 数据工具: MustJSON，简化测试请求体构造

# 子包

  - testutil/fixtures: 测试数据工厂，提供预置 GLB 二进制样例
    （单三角形、双节点、空场景、无顶点、纯点集、损坏、截断等）

# 使用示例

	ctx := testutil.TestContext(t)
	data := fixtures.TriangleGLB()
	decoded, err := gltf.Decode(data)
	testutil.AssertEventuallyTrue(t, func() bool { return done.Load() }, 5*time.Second)
*/
package testutil
