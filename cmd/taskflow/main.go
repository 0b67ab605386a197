// =============================================================================
// TaskFlow 主入口
// =============================================================================
// 命令行驱动的工作流执行，包含配置加载、Prometheus 指标、优雅停止
//
// 使用方法:
//
//	taskflow run --title "build the report"       # 执行一次工作流
//	taskflow run --config taskflow.yaml           # 指定配置文件
//	taskflow run --input input.json               # 从 JSON 文件读取任务输入
//	taskflow resume --thread <id>                 # 从检查点恢复执行
//	taskflow version                              # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow"
	"github.com/BaSui01/taskflow/config"
	"github.com/BaSui01/taskflow/engine"
	"github.com/BaSui01/taskflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runWorkflow(os.Args[2:])
	case "resume":
		resumeWorkflow(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ run 命令
// =============================================================================

func runWorkflow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	title := fs.String("title", "", "Task title")
	taskType := fs.String("type", "", "Task type")
	inputPath := fs.String("input", "", "Path to JSON file with task input")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint, e.g. :9091")
	fs.Parse(args)

	cfg, logger := loadConfig(*configPath)
	defer logger.Sync()

	logger.Info("Starting TaskFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	input := readInput(*inputPath)
	if *title != "" {
		input["title"] = *title
	}
	if *taskType != "" {
		input["type"] = *taskType
	}

	eng := buildEngine(cfg, logger)
	stopMetrics := maybeServeMetrics(*metricsAddr, logger)
	defer stopMetrics()

	s, err := eng.Execute(watchSignals(eng, logger), input)
	if err != nil {
		logger.Fatal("Execution failed to start", zap.Error(err))
	}
	report(eng, s)
}

// =============================================================================
// ▶️ resume 命令
// =============================================================================

func resumeWorkflow(args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Thread id to resume")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint")
	fs.Parse(args)

	if *threadID == "" {
		fmt.Fprintln(os.Stderr, "resume requires --thread")
		os.Exit(1)
	}

	cfg, logger := loadConfig(*configPath)
	defer logger.Sync()

	eng := buildEngine(cfg, logger)
	stopMetrics := maybeServeMetrics(*metricsAddr, logger)
	defer stopMetrics()

	s, err := eng.Resume(watchSignals(eng, logger), *threadID)
	if err != nil {
		logger.Fatal("Resume failed", zap.String("thread_id", *threadID), zap.Error(err))
	}
	report(eng, s)
}

// =============================================================================
// 🔧 装配辅助
// =============================================================================

func loadConfig(path string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, config.NewLogger(cfg.Log)
}

func buildEngine(cfg *config.Config, logger *zap.Logger) *engine.Engine {
	eng, err := taskflow.New(
		taskflow.WithConfig(cfg),
		taskflow.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}
	return eng
}

func readInput(path string) map[string]any {
	input := make(map[string]any)
	if path == "" {
		return input
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input file: %v\n", err)
		os.Exit(1)
	}
	if err := json.Unmarshal(data, &input); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse input file: %v\n", err)
		os.Exit(1)
	}
	return input
}

// watchSignals 把 SIGINT/SIGTERM 转换成引擎的协作式停止：
// 第一个信号请求暂停（落检查点），第二个信号取消上下文直接退出
func watchSignals(eng *engine.Engine, logger *zap.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("Signal received, pausing at next phase boundary")
		eng.Stop()
		<-sigs
		logger.Warn("Second signal received, cancelling")
		cancel()
	}()
	return ctx
}

func maybeServeMetrics(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// report 输出执行结果摘要并用退出码反映终态
func report(eng *engine.Engine, s *types.State) {
	summary := map[string]any{
		"thread_id":        s.ThreadID,
		"status":           string(eng.Status()),
		"phase":            string(s.Workflow.CurrentPhase),
		"completed_phases": s.Workflow.CompletedPhases,
		"task_status":      string(s.Task.Status),
		"iterations":       s.Workflow.ExecutionMeta["iterations"],
	}
	if s.Error != nil {
		summary["error"] = s.Error
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))

	switch eng.Status() {
	case engine.StatusCompleted, engine.StatusPaused:
		os.Exit(0)
	default:
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("TaskFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`TaskFlow - Workflow Orchestration Engine

Usage:
  taskflow <command> [options]

Commands:
  run       Execute a workflow to completion
  resume    Resume a paused workflow from its latest checkpoint
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>        Path to configuration file (YAML)
  --title <title>        Task title
  --type <type>          Task type
  --input <path>         JSON file with additional task input
  --metrics-addr <addr>  Expose Prometheus /metrics on this address

Options for 'resume':
  --config <path>        Path to configuration file (YAML)
  --thread <id>          Thread id to resume (required)
  --metrics-addr <addr>  Expose Prometheus /metrics on this address

Examples:
  taskflow run --title "quarterly report"
  taskflow run --config /etc/taskflow/config.yaml --input task.json
  taskflow resume --thread 4f1c9d2a --config /etc/taskflow/config.yaml
  taskflow version`)
}
