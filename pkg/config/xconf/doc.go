// Package xconf 加载 YAML/JSON 配置文件，支持默认值和文件变更热重载，基于 koanf。
//
// # 使用方式
//
//	cfg, err := xconf.Load("/etc/tasksvc/config.yaml",
//	    xconf.WithDefaults(map[string]any{"log.level": "info"}))
//	var s Settings
//	err = cfg.Unmarshal("", &s)
//
// 路径为空时只使用默认值，方便本地运行。
//
// # 热重载
//
// [Config.Watch] 监视配置文件所在目录（编辑器常以"写临时文件再 rename"的方式保存），
// 防抖后调用 Reload 并通知回调。Watch 阻塞到 ctx 结束，可以直接作为 xrun 组件运行。
//
// 重载是快照替换：解析失败时保留旧配置。
package xconf
