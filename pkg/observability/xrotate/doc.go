// Package xrotate 为日志文件输出提供按大小轮转的 io.WriteCloser。
//
// xlog 的文件传输（Builder.SetRotation）基于本包：记录写入当前文件，
// 超过大小上限后自动切换新文件，旧文件按数量和天数清理、可选 gzip 压缩。
//
// # 当前实现
//
//   - [NewLumberjack]: 基于 lumberjack v2
//
// 所有 [Rotator] 实现都是并发安全的；Close 之后的 Write/Rotate 返回 [ErrClosed]。
package xrotate
