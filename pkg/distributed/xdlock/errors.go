package xdlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redsync/redsync/v4"
)

var (
	// ErrLockHeld 锁被其他持有者占用
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")
	// ErrLockFailed 获取锁失败
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")
	// ErrExtendFailed 续期失败，锁可能仍在
	ErrExtendFailed = errors.New("xdlock: failed to extend lock")
	// ErrNotLocked 锁已过期、被抢走或已释放
	ErrNotLocked = errors.New("xdlock: not locked")
	// ErrNilClient 客户端为空
	ErrNilClient = errors.New("xdlock: client is nil")
	// ErrClosed Locker 已关闭
	ErrClosed = errors.New("xdlock: locker is closed")
	// ErrEmptyKey key 为空
	ErrEmptyKey = errors.New("xdlock: key must not be empty")
	// ErrKeyTooLong key 超过 512 字节
	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")
)

const maxKeyLen = 512

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLen {
		return ErrKeyTooLong
	}
	return nil
}

// wrapError 把 redsync 错误转换为本包错误，保留原始错误链
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var taken *redsync.ErrTaken
	switch {
	case errors.As(err, &taken):
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	case errors.Is(err, redsync.ErrFailed):
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	case errors.Is(err, redsync.ErrExtendFailed):
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	case errors.Is(err, redsync.ErrLockAlreadyExpired):
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	}
	return err
}
