package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/state"
	"github.com/BaSui01/taskflow/types"
)

// ErrNotFound is returned when no checkpoint matches the lookup.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint 工作流状态检查点
// 一旦写入即不可变；相同 ID 的再次写入是整体替换而不是修改
type Checkpoint struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	State     *types.State   `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// clone 深拷贝检查点，避免把内部指针交给调用方
func (c *Checkpoint) clone() *Checkpoint {
	out := *c
	if c.State != nil {
		out.State = c.State.MustClone()
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Store 检查点存储接口
type Store interface {
	// Save 保存检查点（相同 ID 覆盖）
	Save(ctx context.Context, cp *Checkpoint) error

	// Load 加载指定检查点
	Load(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// LoadLatest 加载线程最新检查点
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List 按新到旧列出线程检查点
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)

	// Delete 删除检查点
	Delete(ctx context.Context, threadID, checkpointID string) error

	// DeleteOlderThan 删除早于 cutoff 的所有检查点，返回删除数量
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Config 检查点策略配置
type Config struct {
	// MinInterval 两次快照之间的最小间隔
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	// MemoryCapacity 内存环形缓冲每线程容量
	MemoryCapacity int `yaml:"memory_capacity" json:"memory_capacity"`
}

// DefaultConfig 返回默认检查点配置
func DefaultConfig() Config {
	return Config{
		MinInterval:    30 * time.Second,
		MemoryCapacity: 50,
	}
}

// Stats counts manager operations. Failures are surfaced, never swallowed.
type Stats struct {
	Saves    int64 `json:"saves"`
	Loads    int64 `json:"loads"`
	Deletes  int64 `json:"deletes"`
	Failures int64 `json:"failures"`
}

// Manager 检查点管理器
// 封装存储能力，提供快照策略、暂停/恢复与回滚
type Manager struct {
	store  Store
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	paused map[string]string // thread id -> checkpoint id captured at pause

	saves    atomic.Int64
	loads    atomic.Int64
	deletes  atomic.Int64
	failures atomic.Int64
}

// NewManager 创建检查点管理器
func NewManager(store Store, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinInterval <= 0 {
		config.MinInterval = DefaultConfig().MinInterval
	}
	return &Manager{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
		paused: make(map[string]string),
	}
}

// CreateCheckpoint 保存状态快照并返回检查点 ID
func (m *Manager) CreateCheckpoint(ctx context.Context, threadID string, s *types.State, metadata map[string]any) (string, error) {
	snapshot, err := state.Snapshot(s)
	if err != nil {
		m.failures.Add(1)
		return "", types.NewError(types.ErrStorage, "snapshot state").WithCause(err)
	}

	cp := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		State:     snapshot,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	if err := m.store.Save(ctx, cp); err != nil {
		m.failures.Add(1)
		return "", types.NewError(types.ErrStorage, "save checkpoint").WithCause(err)
	}
	m.saves.Add(1)

	m.logger.Debug("checkpoint created",
		zap.String("checkpoint_id", cp.ID),
		zap.String("thread_id", threadID),
		zap.String("phase", s.Workflow.CurrentPhase.String()),
	)
	return cp.ID, nil
}

// LoadCheckpoint 加载检查点状态；checkpointID 为空时加载最新
// 从存储取回的状态先经过修复再交给调用方
func (m *Manager) LoadCheckpoint(ctx context.Context, threadID, checkpointID string) (*types.State, error) {
	cp, err := m.loadRecord(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	restored := cp.State.MustClone()
	state.Repair(restored, m.logger)
	return restored, nil
}

func (m *Manager) loadRecord(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	var (
		cp  *Checkpoint
		err error
	)
	if checkpointID == "" {
		cp, err = m.store.LoadLatest(ctx, threadID)
	} else {
		cp, err = m.store.Load(ctx, threadID, checkpointID)
	}
	if err != nil {
		m.failures.Add(1)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("thread %s: %w", threadID, err)
		}
		return nil, types.NewError(types.ErrStorage, "load checkpoint").WithCause(err)
	}
	m.loads.Add(1)
	return cp, nil
}

// ListCheckpoints 按新到旧列出检查点
func (m *Manager) ListCheckpoints(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	cps, err := m.store.List(ctx, threadID, limit)
	if err != nil {
		m.failures.Add(1)
		return nil, types.NewError(types.ErrStorage, "list checkpoints").WithCause(err)
	}
	return cps, nil
}

// DeleteCheckpoint 删除检查点
func (m *Manager) DeleteCheckpoint(ctx context.Context, threadID, checkpointID string) error {
	if err := m.store.Delete(ctx, threadID, checkpointID); err != nil {
		m.failures.Add(1)
		return types.NewError(types.ErrStorage, "delete checkpoint").WithCause(err)
	}
	m.deletes.Add(1)
	return nil
}

// CleanupOlderThan 清理早于 cutoff 的检查点，返回删除数量
func (m *Manager) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		m.failures.Add(1)
		return n, types.NewError(types.ErrStorage, "cleanup checkpoints").WithCause(err)
	}
	m.deletes.Add(int64(n))
	m.logger.Info("checkpoints pruned",
		zap.Time("cutoff", cutoff),
		zap.Int("deleted", n),
	)
	return n, nil
}

// ShouldCheckpoint 快照策略：线程没有任何检查点、阶段变化、任务状态变化、
// 或距上次快照已超过最小间隔时返回 true
func (m *Manager) ShouldCheckpoint(ctx context.Context, threadID string, s *types.State) bool {
	last, err := m.store.LoadLatest(ctx, threadID)
	if err != nil {
		return true
	}
	if last.State == nil || last.State.Workflow == nil || last.State.Task == nil {
		return true
	}
	if last.State.Workflow.CurrentPhase != s.Workflow.CurrentPhase {
		return true
	}
	if last.State.Task.Status != s.Task.Status {
		return true
	}
	return time.Since(last.CreatedAt) >= m.config.MinInterval
}

// PauseExecution 暂停：保存快照并登记线程为已暂停
func (m *Manager) PauseExecution(ctx context.Context, threadID string, s *types.State) (string, error) {
	id, err := m.CreateCheckpoint(ctx, threadID, s, map[string]any{
		"paused":    true,
		"paused_at": time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.paused[threadID] = id
	m.mu.Unlock()

	m.logger.Info("execution paused",
		zap.String("thread_id", threadID),
		zap.String("checkpoint_id", id),
	)
	return id, nil
}

// ResumeExecution 恢复：加载最新快照并在执行元数据中盖上 resumed_at
func (m *Manager) ResumeExecution(ctx context.Context, threadID string) (*types.State, error) {
	restored, err := m.LoadCheckpoint(ctx, threadID, "")
	if err != nil {
		return nil, err
	}
	restored.Workflow.ExecutionMeta["resumed_at"] = time.Now().Format(time.RFC3339Nano)
	restored.Touch()

	m.mu.Lock()
	delete(m.paused, threadID)
	m.mu.Unlock()

	m.logger.Info("execution resumed", zap.String("thread_id", threadID))
	return restored, nil
}

// IsPaused 查询线程是否处于暂停状态
func (m *Manager) IsPaused(threadID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.paused[threadID]
	return ok
}

// RollbackToCheckpoint 回滚到指定检查点
// 恢复的状态清除错误记录，并盖上 rolled_back_at / rollback_to_checkpoint，
// 让消费方能够察觉历史的不连续
func (m *Manager) RollbackToCheckpoint(ctx context.Context, threadID, checkpointID string) (*types.State, error) {
	restored, err := m.LoadCheckpoint(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	state.ClearError(restored)
	restored.Workflow.ExecutionMeta["rolled_back_at"] = time.Now().Format(time.RFC3339Nano)
	restored.Workflow.ExecutionMeta["rollback_to_checkpoint"] = checkpointID
	restored.Touch()

	m.logger.Info("rolled back to checkpoint",
		zap.String("thread_id", threadID),
		zap.String("checkpoint_id", checkpointID),
	)
	return restored, nil
}

// Stats 返回操作计数快照
func (m *Manager) Stats() Stats {
	return Stats{
		Saves:    m.saves.Load(),
		Loads:    m.loads.Load(),
		Deletes:  m.deletes.Load(),
		Failures: m.failures.Load(),
	}
}
