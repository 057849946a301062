// 配置文件变更监听器实现。
//
// 以轮询方式探测文件变化（mtime 与大小），经防抖窗口归并后
// 触发配置重载回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher watches configuration files for changes
type FileWatcher struct {
	mu sync.RWMutex

	// 配置
	paths         []string
	debounceDelay time.Duration
	pollInterval  time.Duration

	// 状态
	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	// 回调
	callbacks []func(event FileEvent)

	// 记录器
	logger *zap.Logger

	// 每个被监听文件最近一次观测到的状态
	lastStates map[string]fileState
}

// fileState 轮询探测用的文件指纹（mtime 精度不足时由大小兜底）
type fileState struct {
	modTime time.Time
	size    int64
}

// FileEvent represents a file change event
type FileEvent struct {
	// Path是改变的文件路径
	Path string `json:"path"`

	// op 是操作类型
	Op FileOp `json:"op"`

	// 时间戳是事件发生的时间
	Timestamp time.Time `json:"timestamp"`

	// 检测过程中如有错误
	Error error `json:"error,omitempty"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
	// FileOpRename 表示文件已重命名
	FileOpRename
	// FileOpChmod 表示文件权限已更改
	FileOpChmod
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	case FileOpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// WithPollInterval sets how often watched files are re-examined
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher creates a new file watcher
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         paths,
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 100),
		callbacks:     make([]func(FileEvent), 0),
		lastStates:    make(map[string]fileState),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	// 验证路径是否存在
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				w.logger.Warn("Config file does not exist, will watch for creation",
					zap.String("path", path))
			} else {
				return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
			}
		}
	}

	return w, nil
}

// OnChange registers a callback for file change events
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for file changes
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true

	// 记录初始状态，后续轮询据此判断变更
	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.lastStates[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	w.mu.Unlock()

	// 轮询探测 goroutine
	go w.pollLoop(ctx)

	// 防抖归并与回调分发 goroutine
	go w.dispatchLoop(ctx)

	w.logger.Info("File watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("debounce_delay", w.debounceDelay))

	return nil
}

// Stop stops the file watcher
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

// pollLoop polls files for changes (fallback for systems without fsnotify)
func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

// checkFiles checks all watched files for modifications
func (w *FileWatcher) checkFiles() {
	// 锁内只做状态比对，事件投递放到锁外，避免通道背压拖住其他调用者
	w.mu.Lock()
	var events []FileEvent
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				// 之前跟踪过的文件消失了
				if _, existed := w.lastStates[path]; existed {
					delete(w.lastStates, path)
					events = append(events, FileEvent{
						Path:      path,
						Op:        FileOpRemove,
						Timestamp: time.Now(),
					})
				}
			}
			continue
		}

		current := fileState{modTime: info.ModTime(), size: info.Size()}
		last, existed := w.lastStates[path]
		switch {
		case !existed:
			w.lastStates[path] = current
			events = append(events, FileEvent{
				Path:      path,
				Op:        FileOpCreate,
				Timestamp: time.Now(),
			})
		case !current.modTime.Equal(last.modTime) || current.size != last.size:
			w.lastStates[path] = current
			events = append(events, FileEvent{
				Path:      path,
				Op:        FileOpWrite,
				Timestamp: time.Now(),
			})
		}
	}
	w.mu.Unlock()

	for _, evt := range events {
		select {
		case w.eventChan <- evt:
		case <-w.stopChan:
			return
		}
	}
}

// dispatchLoop dispatches events to callbacks with debouncing.
// pendingEvents 只在本 goroutine 内读写；防抖定时器以 channel 形式
// 并入 select，归并与分发全程单线程。
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	var (
		pendingEvents = make(map[string]FileEvent)
		debounce      *time.Timer
		flushC        <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.eventChan:
			// 同一路径的后续事件覆盖先前事件
			pendingEvents[event.Path] = event

			// 重置防抖窗口
			if debounce == nil {
				debounce = time.NewTimer(w.debounceDelay)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.debounceDelay)
			}
			flushC = debounce.C
		case <-flushC:
			flushC = nil
			w.dispatchPending(pendingEvents)
			pendingEvents = make(map[string]FileEvent)
		}
	}
}

// dispatchPending 将归并后的事件分发给已注册的回调
func (w *FileWatcher) dispatchPending(pending map[string]FileEvent) {
	if len(pending) == 0 {
		return
	}

	w.mu.RLock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for path, evt := range pending {
		w.logger.Debug("Dispatching file event",
			zap.String("path", path),
			zap.String("op", evt.Op.String()))

		for _, cb := range callbacks {
			cb(evt)
		}
	}
}

// AddPath adds a new path to watch
func (w *FileWatcher) AddPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 解析为绝对路径
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// 已在监听列表中则忽略
	for _, p := range w.paths {
		if p == path || p == absPath {
			return nil
		}
	}

	w.paths = append(w.paths, absPath)

	// 如果文件存在则记录初始状态
	if info, err := os.Stat(absPath); err == nil {
		w.lastStates[absPath] = fileState{modTime: info.ModTime(), size: info.Size()}
	}

	w.logger.Info("Added path to watcher", zap.String("path", absPath))
	return nil
}

// RemovePath removes a path from watching
func (w *FileWatcher) RemovePath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, _ := filepath.Abs(path)

	for i, p := range w.paths {
		if p == path || p == absPath {
			w.paths = append(w.paths[:i], w.paths[i+1:]...)
			delete(w.lastStates, p)
			w.logger.Info("Removed path from watcher", zap.String("path", p))
			return nil
		}
	}

	return fmt.Errorf("path not found: %s", path)
}

// Paths returns the list of watched paths
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, len(w.paths))
	copy(paths, w.paths)
	return paths
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
