// 版权所有 2024 DocRoute Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的路由引擎指标采集能力，覆盖
工作流实例、人工任务与 Fork/Join 三大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。
Collector 由引擎构造函数注入，不使用进程级全局计数器。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理；nil Collector 的
    记录方法为空操作，便于在不需要指标的场景下省略注入。

# 主要能力

  - 实例指标：启动总数、结束总数（done/cancelled/suspended）、
    活跃实例 Gauge、步骤停留时长 Histogram，按 definition 分组。
  - 任务指标：任务创建与结束计数，按 definition/step/status 分组。
  - Fork/Join 指标：分支到达 Join 的裁决计数（ready/waiting），
    按 definition 分组。
*/
package metrics
