// 配置热重载实现。
//
// 组合 Loader 与 FileWatcher：文件变更时重新加载配置，校验通过后
// 原子替换当前配置并通知订阅者。
package config

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadCallback 在配置成功重载后被调用
type ReloadCallback func(old, new *Config)

// Reloader 持有当前配置并在文件变更时热重载
type Reloader struct {
	loader  *Loader
	watcher *FileWatcher
	logger  *zap.Logger

	current atomic.Pointer[Config]

	mu        sync.RWMutex
	callbacks []ReloadCallback
}

// NewReloader 创建配置热重载器。path 为被监视的配置文件。
func NewReloader(path string, logger *zap.Logger, opts ...WatcherOption) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate)

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	watcher, err := NewFileWatcher(path, append(opts, WithWatcherLogger(logger))...)
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		loader:  loader,
		watcher: watcher,
		logger:  logger.With(zap.String("component", "config_reloader")),
	}
	r.current.Store(cfg)
	watcher.OnChange(r.handleEvent)
	return r, nil
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload 注册重载成功回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start 开始监视配置文件
func (r *Reloader) Start(ctx context.Context) error {
	return r.watcher.Start(ctx)
}

// Stop 停止监视
func (r *Reloader) Stop() error {
	return r.watcher.Stop()
}

// handleEvent 处理文件变更：删除事件忽略，保留最后一份有效配置
func (r *Reloader) handleEvent(event FileEvent) {
	if event.Op == FileOpRemove {
		r.logger.Warn("Config file removed, keeping last valid config",
			zap.String("path", event.Path))
		return
	}

	cfg, err := r.loader.Load()
	if err != nil {
		// 加载或校验失败，保留旧配置
		r.logger.Error("Config reload failed, keeping last valid config",
			zap.String("path", event.Path),
			zap.Error(err))
		return
	}

	old := r.current.Swap(cfg)

	r.mu.RLock()
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	for _, cb := range callbacks {
		cb(old, cfg)
	}

	r.logger.Info("Config reloaded", zap.String("path", event.Path))
}
