// 配置文件变更监听器实现。
//
// 基于轮询机制检测配置文件变更并触发重载回调。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileEvent 表示一次配置文件变更
type FileEvent struct {
	// 变更的文件路径
	Path string `json:"path"`
	// 操作类型
	Op FileOp `json:"op"`
	// 事件发生的时间
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 表示文件操作类型
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 表示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileWatcher 轮询监视配置文件的变更
type FileWatcher struct {
	mu sync.RWMutex

	path         string
	pollInterval time.Duration
	callbacks    []func(event FileEvent)
	logger       *zap.Logger

	running  bool
	stopChan chan struct{}
	lastMod  time.Time
	existed  bool
}

// WatcherOption configures the FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.pollInterval = d
	}
}

// WithWatcherLogger 设置监听器日志
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher 创建配置文件监听器
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		path:         path,
		pollInterval: time.Second,
		stopChan:     make(chan struct{}),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
		w.existed = true
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	} else {
		w.logger.Warn("Config file does not exist, will watch for creation",
			zap.String("path", path))
	}

	return w, nil
}

// OnChange 注册文件变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始监视文件变更
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	// Stop closed the previous channel; every Start gets a fresh one so the
	// watcher can be restarted.
	w.stopChan = make(chan struct{})
	stop := w.stopChan
	w.mu.Unlock()

	go w.pollLoop(ctx, stop)

	w.logger.Info("File watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop 停止监听器
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("File watcher stopped")
	return nil
}

// IsRunning 返回监听器是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *FileWatcher) pollLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if event, ok := w.check(); ok {
				w.dispatch(event)
			}
		}
	}
}

// check 检查文件状态，返回变更事件
func (w *FileWatcher) check() (FileEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.existed {
			w.existed = false
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: time.Now()}, true
		}
		return FileEvent{}, false
	}

	if !w.existed {
		w.existed = true
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: time.Now()}, true
	}
	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: time.Now()}, true
	}
	return FileEvent{}, false
}

func (w *FileWatcher) dispatch(event FileEvent) {
	w.mu.RLock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Debug("Dispatching file event",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))

	for _, cb := range callbacks {
		cb(event)
	}
}
