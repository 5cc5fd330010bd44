package xeventid

// options 内部配置结构
type options struct {
	seed    [SeedSize]byte
	seedSet bool
	counter uint64
}

// Option 配置选项函数
type Option func(*options)

// WithSeed 指定实例随机值。
//
// 默认使用 UUIDv4。固定随机值仅用于测试或需要可复现输出的场景；
// 生产环境多个实例共用同一随机值会失去跨实例唯一性。
func WithSeed(seed [SeedSize]byte) Option {
	return func(o *options) {
		o.seed = seed
		o.seedSet = true
	}
}

// WithCounter 指定计数器初始值。
//
// 下一次 Next 返回 start+1 对应的 ID。主要用于测试计数器回绕。
func WithCounter(start uint64) Option {
	return func(o *options) {
		o.counter = start
	}
}
