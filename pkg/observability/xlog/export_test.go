package xlog

// SetNewBuilderForTest 替换默认 Logger 的构建器工厂，用于覆盖构建失败时的回退输出
func SetNewBuilderForTest(fn func() *Builder) (restore func()) {
	prev := newBuilder
	newBuilder = fn
	return func() { newBuilder = prev }
}
