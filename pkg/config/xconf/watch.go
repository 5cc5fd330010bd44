package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc 文件变更回调，err 非 nil 表示重载失败（旧配置仍然生效）
type ChangeFunc func(cfg *Config, err error)

// WatchOption 监视选项
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// DefaultDebounce 默认防抖时间
const DefaultDebounce = 100 * time.Millisecond

// WithDebounce 防抖时间，窗口内的多次变更只触发一次重载。非正值忽略。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 监视配置文件，变更时自动 Reload 并调用 onChange。
//
// 阻塞直到 ctx 结束，此时返回 nil。创建监视器失败时立即返回错误。
// onChange 在 Watch 所在 goroutine 中同步调用，不应阻塞。
func (c *Config) Watch(ctx context.Context, onChange ChangeFunc, opts ...WatchOption) error {
	if c.path == "" {
		return ErrNotWatchable
	}
	o := watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// 监视目录而非文件：rename 式保存会让文件级监视失效
	dir := filepath.Dir(c.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("xconf: watch directory %s: %w", dir, err)
	}

	filename := filepath.Base(c.path)
	timer := time.NewTimer(o.debounce)
	timer.Stop()
	defer timer.Stop()

	notify := func(err error) {
		if onChange != nil {
			onChange(c, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(event, filename) {
				continue
			}
			timer.Reset(o.debounce)

		case <-timer.C:
			notify(c.Reload())

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			notify(errors.Join(ErrLoadFailed, fmt.Errorf("xconf: watch error: %w", err)))
		}
	}
}

// relevant 只关心目标文件的 Write/Create/Rename
func relevant(event fsnotify.Event, filename string) bool {
	if filepath.Base(event.Name) != filename {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
