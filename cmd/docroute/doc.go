// Copyright (c) DocRoute Authors.
// Licensed under the MIT License.

/*
Package main 提供 DocRoute 命令行工具入口。

# 概述

cmd/docroute 是面向运维与定义作者的命令行入口：校验工作流定义目录、
导出单个定义图的 JSON，以及查询归档数据库中的历史实例与任务。
引擎本身以库形式嵌入宿主应用，本工具不承载 HTTP 服务。

# 主要能力

  - 子命令：validate（校验定义目录）、show（输出定义 JSON）、
    archive list / archive tasks（查询归档）、version
  - 配置来源：默认值 → --config 指定的 YAML → DOCROUTE_ 环境变量
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
