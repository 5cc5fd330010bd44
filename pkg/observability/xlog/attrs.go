package xlog

import (
	"cmp"
	"log/slog"
	"slices"
	"time"
)

// =============================================================================
// 常用属性 Key 常量
// =============================================================================

const (
	// KeyError 错误字段的标准 key
	KeyError = "error"

	// KeyDuration 耗时字段的标准 key
	KeyDuration = "duration"

	// KeyCount 计数字段的标准 key
	KeyCount = "count"

	// KeyMethod HTTP/RPC 方法字段的标准 key
	KeyMethod = "method"

	// KeyPath 请求路径字段的标准 key
	KeyPath = "path"

	// KeyStatusCode HTTP 状态码字段的标准 key
	KeyStatusCode = "status_code"

	// KeyComponent 组件名称字段的标准 key
	KeyComponent = "component"
)

// =============================================================================
// 结构化载荷
// =============================================================================

// Fields 结构化载荷：字段名到值的映射
type Fields map[string]any

// Attrs 将 fields 按 key 排序后转换为属性切片。
func (f Fields) Attrs() []slog.Attr {
	if len(f) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(f))
	for k, v := range f {
		attrs = append(attrs, slog.Any(k, v))
	}
	slices.SortFunc(attrs, func(a, b slog.Attr) int { return cmp.Compare(a.Key, b.Key) })
	return attrs
}

// Payload 将 fields 包装为单个属性，字段平铺在记录顶层（或当前分组下）。
//
// 示例：
//
//	logger.Warn(ctx, "retrying", xlog.Payload(xlog.Fields{"count": 3}))
func Payload(fields Fields) slog.Attr {
	// 空 key 的分组属性由 handler 内联展开
	return slog.Attr{Value: slog.GroupValue(fields.Attrs()...)}
}

// =============================================================================
// 便捷属性构造函数
// =============================================================================

// Err 创建错误属性，key 为 "error"。
//
// err 为 nil 时返回空属性（会被忽略）。消息为空的日志调用以错误文本作为消息：
//
//	logger.Error(ctx, "", xlog.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建耗时属性，输出人类可读格式（如 "1.5s"）
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Count 创建计数属性
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// StatusCode 创建 HTTP 状态码属性
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Method 创建 HTTP/RPC 方法属性
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path 创建请求路径属性
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// errorText 返回属性中第一个 error 字段的文本
func errorText(attrs []slog.Attr) string {
	for _, a := range attrs {
		if a.Key == KeyError {
			return a.Value.String()
		}
	}
	return ""
}
