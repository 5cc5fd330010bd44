// Package xkeylock 提供基于 key 的进程内互斥锁。
//
// 同一 key 的持有者互斥，不同 key 互不影响。内部按 key 的 xxhash 分片，
// 减少管理锁争用；不再被持有或等待的 key 会被回收。
//
//	kl := xkeylock.New()
//	h, err := kl.Acquire(ctx, "task-42")
//	if err != nil {
//	    return err
//	}
//	defer h.Unlock()
//
// Close 拒绝新的请求并唤醒所有等待者，已持有的锁不受影响。
package xkeylock
