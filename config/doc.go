// 版权所有 2024 DocRoute Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 config 提供 DocRoute 的统一配置加载能力。

# 概述

配置来源按优先级叠加：默认值 → YAML 文件 → 环境变量（DOCROUTE_ 前缀，
可自定义）。Loader 采用 Builder 模式，支持注册自定义验证器；
Config.Validate 覆盖驱动、日志级别与缓存依赖等基础校验。

# 核心类型

  - Config：引擎、Redis 缓存、归档数据库与日志四个配置段。
  - Loader：NewLoader().WithConfigPath(...).WithEnvPrefix(...).Load()。
  - LogConfig.BuildLogger：根据配置构建 zap.Logger。
  - DatabaseConfig.DSN：按驱动生成连接串。
*/
package config
