package xkeylock

import "errors"

var (
	// ErrLockNotHeld Handle 已经释放
	ErrLockNotHeld = errors.New("xkeylock: lock not held")
	// ErrClosed Locker 已关闭
	ErrClosed = errors.New("xkeylock: locker closed")
	// ErrMaxKeysExceeded 活跃 key 数达到上限
	ErrMaxKeysExceeded = errors.New("xkeylock: max keys exceeded")
)
