// Package xenv 管理进程级运行模式。
//
// 运行模式在服务启动时确定，整个生命周期内不变，决定日志的渲染方式：
//   - production : 机器可读，输出云日志兼容的 JSON
//   - development: 人类可读，输出带颜色的单行文本
//
// # 快速开始
//
//	func main() {
//	    xenv.MustInit() // 读取 APP_ENV
//	    if xenv.IsProduction() {
//	        // ...
//	    }
//	}
//
// # 环境变量
//
//   - APP_ENV: "production" 时为生产模式（大小写不敏感），其余值或未设置均为开发模式
//
// # 线程安全
//
// Init/InitWith 只应在 main() 中调用一次；Current/IsProduction 可并发调用。
package xenv
