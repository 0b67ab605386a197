// 配置文件监听器测试。
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bumpMtime 显式推进文件修改时间，避免文件系统时间粒度导致漏检
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func waitForEvent(t *testing.T, events <-chan FileEvent) FileEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for file event")
		return FileEvent{}
	}
}

// --- Constructor ---

func TestNewFileWatcher_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("key: val"), 0644))

	w, err := NewFileWatcher(f)
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.False(t, w.IsRunning())
	assert.Equal(t, time.Second, w.pollInterval)
}

func TestNewFileWatcher_WithOptions(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("key: val"), 0644))

	w, err := NewFileWatcher(f, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, w.pollInterval)
}

func TestNewFileWatcher_NonExistentPath(t *testing.T) {
	// 文件不存在不报错，等待创建事件
	w, err := NewFileWatcher(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NotNil(t, w)
}

// --- 事件检测 ---

func TestFileWatcher_DetectsWrite(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("v: 1"), 0644))

	w, err := NewFileWatcher(f, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	events := make(chan FileEvent, 4)
	w.OnChange(func(ev FileEvent) { events <- ev })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.True(t, w.IsRunning())

	require.NoError(t, os.WriteFile(f, []byte("v: 2"), 0644))
	bumpMtime(t, f)

	ev := waitForEvent(t, events)
	assert.Equal(t, FileOpWrite, ev.Op)
	assert.Equal(t, f, ev.Path)
}

func TestFileWatcher_DetectsCreateAndRemove(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "late.yaml")

	w, err := NewFileWatcher(f, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	events := make(chan FileEvent, 4)
	w.OnChange(func(ev FileEvent) { events <- ev })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(f, []byte("v: 1"), 0644))
	ev := waitForEvent(t, events)
	assert.Equal(t, FileOpCreate, ev.Op)

	require.NoError(t, os.Remove(f))
	ev = waitForEvent(t, events)
	assert.Equal(t, FileOpRemove, ev.Op)
}

// --- 生命周期 ---

func TestFileWatcher_DoubleStart(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("v: 1"), 0644))

	w, err := NewFileWatcher(f, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestFileWatcher_StopIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("v: 1"), 0644))

	w, err := NewFileWatcher(f)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

// --- FileOp ---

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(99).String())
}

func TestFileWatcher_RestartAfterStop(t *testing.T) {
	tmpDir := t.TempDir()
	f := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("v: 1"), 0644))

	w, err := NewFileWatcher(f, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	events := make(chan FileEvent, 4)
	w.OnChange(func(ev FileEvent) { events <- ev })

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	// 重启后轮询循环必须重新工作
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.True(t, w.IsRunning())

	require.NoError(t, os.WriteFile(f, []byte("v: 2"), 0644))
	bumpMtime(t, f)

	ev := waitForEvent(t, events)
	assert.Equal(t, FileOpWrite, ev.Op)
	assert.Equal(t, f, ev.Path)
}
