// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 store 提供转换历史的持久化存储，基于 gorm 支持
SQLite、PostgreSQL 与 MySQL 三种数据库。

# 概述

每次 GLB 转换（无论成功或失败）都会生成一条 ConversionRecord，
记录来源地址、输出格式、几何统计与耗时。Store 封装 gorm 连接，
提供写入与历史查询接口，并通过 internal/database 的连接池管理器
控制连接复用与健康检查。

# 核心类型

  - ConversionRecord：单次转换的持久化记录，含几何统计
    （三角形数、顶点数）、输入输出字节数与耗时。
  - Store：存储门面，提供 Create/GetByID/ListRecent/
    ListByStatus/CountByStatus/Purge 等操作。
  - StatusSummary：按状态聚合的计数结果。

# 使用示例

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	record := &store.ConversionRecord{
		ID:           uuid.New().String(),
		SourceURL:    "https://assets.example.com/model.glb",
		OutputFormat: "stl",
		Status:       store.StatusSucceeded,
	}
	if err := st.Create(ctx, record); err != nil {
		return err
	}

数据库驱动由配置的 driver 字段选择：sqlite 使用纯 Go 实现
（github.com/glebarez/sqlite），postgres 与 mysql 使用官方 gorm 驱动。
表结构既可由 AutoMigrate 创建，也可由 internal/migration 的
版本化迁移管理，两者字段定义保持一致。
*/
package store
