// Copyright (c) TaskFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TaskFlow 命令行入口。

# 概述

cmd/taskflow 是 TaskFlow 工作流引擎的可执行入口，提供从命令行驱动
一次工作流执行、从检查点恢复、健康检查配置与版本查询等子命令。
程序支持 YAML 配置文件加载、环境变量覆盖、结构化日志（zap）以及
可选的 Prometheus 指标端口。

# 主要能力

  - 子命令：run（执行工作流）、resume（从检查点恢复）、version、help
  - 配置：--config 指定 YAML 文件，TASKFLOW_* 环境变量覆盖
  - 指标：--metrics-addr 启动独立端口暴露 /metrics（Prometheus）
  - 优雅停止：SIGINT/SIGTERM → 引擎在下一个阶段边界暂停并落检查点
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
