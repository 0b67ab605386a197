package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 工作流指标收集器
type Collector struct {
	// 工作流指标
	workflowExecutionsTotal   *prometheus.CounterVec
	workflowExecutionDuration *prometheus.HistogramVec
	workflowIterations        *prometheus.HistogramVec

	// 阶段指标
	phaseTransitionsTotal *prometheus.CounterVec
	phaseDuration         *prometheus.HistogramVec

	// Agent 指标
	agentExecutionsTotal *prometheus.CounterVec
	agentRetriesTotal    *prometheus.CounterVec
	agentTimeoutsTotal   *prometheus.CounterVec

	// 检查点指标
	checkpointOpsTotal      *prometheus.CounterVec
	checkpointFailuresTotal prometheus.Counter

	// 路由指标
	routingEvaluationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// reg 为 nil 时使用默认注册表
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.workflowExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions by final status",
		},
		[]string{"status"},
	)

	c.workflowExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"status"},
	)

	c.workflowIterations = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_iterations",
			Help:      "Routing loop iterations per workflow execution",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		},
		[]string{"status"},
	)

	c.phaseTransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of phase transitions",
		},
		[]string{"from", "to"},
	)

	c.phaseDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time spent in each phase in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	c.agentExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions by outcome",
		},
		[]string{"agent", "outcome"},
	)

	c.agentRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_retries_total",
			Help:      "Total number of agent retry attempts",
		},
		[]string{"agent"},
	)

	c.agentTimeoutsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_timeouts_total",
			Help:      "Total number of agent attempt timeouts",
		},
		[]string{"agent"},
	)

	c.checkpointOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Total number of checkpoint operations",
		},
		[]string{"operation"},
	)

	c.checkpointFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_failures_total",
			Help:      "Total number of failed checkpoint operations",
		},
	)

	c.routingEvaluationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_evaluations_total",
			Help:      "Total number of routing evaluations by decision",
		},
		[]string{"router", "decision"},
	)

	return c
}

// RecordWorkflowExecution 记录一次工作流执行
func (c *Collector) RecordWorkflowExecution(status string, duration time.Duration, iterations int) {
	c.workflowExecutionsTotal.WithLabelValues(status).Inc()
	c.workflowExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.workflowIterations.WithLabelValues(status).Observe(float64(iterations))
}

// RecordPhaseTransition 记录一次阶段转换
func (c *Collector) RecordPhaseTransition(from, to string, spent time.Duration) {
	c.phaseTransitionsTotal.WithLabelValues(from, to).Inc()
	if spent > 0 {
		c.phaseDuration.WithLabelValues(from).Observe(spent.Seconds())
	}
}

// RecordAgentExecution 记录一次 Agent 执行
func (c *Collector) RecordAgentExecution(agent, outcome string) {
	c.agentExecutionsTotal.WithLabelValues(agent, outcome).Inc()
}

// RecordAgentRetry 记录一次 Agent 重试
func (c *Collector) RecordAgentRetry(agent string) {
	c.agentRetriesTotal.WithLabelValues(agent).Inc()
}

// RecordAgentTimeout 记录一次 Agent 超时
func (c *Collector) RecordAgentTimeout(agent string) {
	c.agentTimeoutsTotal.WithLabelValues(agent).Inc()
}

// RecordCheckpointOp 记录一次检查点操作
func (c *Collector) RecordCheckpointOp(operation string) {
	c.checkpointOpsTotal.WithLabelValues(operation).Inc()
}

// RecordCheckpointFailure 记录一次检查点失败
func (c *Collector) RecordCheckpointFailure() {
	c.checkpointFailuresTotal.Inc()
}

// RecordRoutingEvaluation 记录一次路由评估
func (c *Collector) RecordRoutingEvaluation(router, decision string) {
	c.routingEvaluationsTotal.WithLabelValues(router, decision).Inc()
}
