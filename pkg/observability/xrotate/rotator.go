package xrotate

import "io"

var _ io.WriteCloser = (Rotator)(nil)

// Rotator 日志轮转器
//
// 约定：
//   - Write 并发安全，触发轮转条件时自动轮转
//   - Close 后 Write/Rotate 返回 [ErrClosed]，重复 Close 也返回 [ErrClosed]
//   - Rotate 可以在任意时刻调用
type Rotator interface {
	io.WriteCloser

	// Rotate 手动轮转：当前文件改名为备份，新建日志文件
	Rotate() error
}
