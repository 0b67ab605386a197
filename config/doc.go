// Package config 提供 TaskFlow 的统一配置：类型定义、默认值、
// YAML 文件与环境变量加载，以及基于文件监视的热重载。
package config
