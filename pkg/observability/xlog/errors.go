package xlog

import "errors"

var (
	// ErrNilHandler 包装的 base handler 为 nil
	ErrNilHandler = errors.New("xlog: base handler is nil")

	// ErrNilWriter 输出目标为 nil
	ErrNilWriter = errors.New("xlog: writer is nil")

	// ErrUnknownLevel 无法识别的级别字符串
	ErrUnknownLevel = errors.New("xlog: unknown level")

	// ErrEncode 字段值无法序列化，这条记录不会写出
	ErrEncode = errors.New("xlog: cannot encode value")
)
