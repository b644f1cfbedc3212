// 版权所有 2024 DocRoute Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的读穿缓存能力，服务于工作流定义注册表的
热路径读取场景。

# 概述

本包封装 go-redis 客户端为 Manager，提供字符串与 JSON 两种读写形态，
以及带命名空间前缀的键构造。缓存未命中返回 ErrCacheMiss 哨兵错误，
调用方据此回源加载并回填。

# 核心类型

  - Manager：缓存管理器，持有 Redis 连接与配置；Close 后所有操作
    返回错误，不会 panic。
  - Config：连接与键前缀配置，DefaultConfig 提供本地开发默认值。

# 主要能力

  - Get / Set：字符串值读写，Set 零值 TTL 回落到 DefaultTTL。
  - GetJSON / SetJSON：JSON 序列化读写，用于 DefinitionSpec 缓存。
  - Delete / Ping / Close：失效、健康检查与生命周期管理。
*/
package cache
