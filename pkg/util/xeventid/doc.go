// Package xeventid 生成单调递增、按字典序可排序的日志事件 ID。
//
// # 用途
//
// 日志时间戳的分辨率有限，同一时刻写出的多条日志在下游（如 Cloud Logging）
// 可能无法还原顺序。xeventid 为每条日志生成一个 insertId：同一个 [Generator]
// 先后生成的 ID 按字节（码点）比较严格递增，可直接作为排序/去重键。
//
// # ID 结构
//
// 每个 ID 由 24 字节编码得到：
//
//	8 bytes  - 大端计数器（从 0 开始，每次 Next 加 1）
//	16 bytes - 实例随机值（构造时由 UUIDv4 生成，进程重启后不同）
//
// 编码使用按码点升序排列的 64 字符表（d64）：每 3 字节编码为 4 个字符，
// 高位在前，不补齐。字符表有序保证编码结果的字典序与原始字节的数值序一致。
// 24 字节恰好编码为 32 个字符。
//
// # 并发
//
// [Generator.Next] 只有一次原子加法，可在任意 goroutine 中并发调用。
//
// # 溢出
//
// 计数器在 2^64 次调用后回绕为 0。回绕后的 ID 会排在之前的 ID 之前，
// 这是已知限制而非错误：单进程生命周期内不可能达到该调用次数。
package xeventid
