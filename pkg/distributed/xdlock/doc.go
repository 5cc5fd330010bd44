// Package xdlock 提供基于 Redis 的分布式锁，底层使用 redsync。
//
// 单个客户端时是标准的 SET NX PX 锁；传入多个独立节点时使用 Redlock，需要过半节点成功。
//
//	locker, err := xdlock.NewRedis(client)
//	h, err := locker.Lock(ctx, "task-42", xdlock.WithExpiry(30*time.Second))
//	if err != nil {
//	    return err
//	}
//	defer h.Unlock(context.WithoutCancel(ctx))
//
// 锁有过期时间。持有时间可能超过 Expiry 的调用方需要定期 Extend。
// 与进程内的 xkeylock 相比，xdlock 每次操作都要访问 Redis。
package xdlock
