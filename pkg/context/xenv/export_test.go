package xenv

// Reset 重置全局状态（仅用于测试）
//
// 先清标志再清值，与 Init 的写入顺序对称；RequireMode 的 m == "" 校验覆盖并发窗口。
func Reset() {
	globalMu.Lock()
	initialized.Store(false)
	globalMode.Store(Mode(""))
	globalMu.Unlock()
}
