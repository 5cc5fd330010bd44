package taskqueue

import "errors"

var (
	// ErrInvalidTask 任务字段校验失败
	ErrInvalidTask = errors.New("taskqueue: invalid task")

	// ErrDuplicateTask 同名任务已在去重窗口内入队
	ErrDuplicateTask = errors.New("taskqueue: duplicate task")

	// ErrNilClient Redis 客户端为 nil
	ErrNilClient = errors.New("taskqueue: nil redis client")

	// ErrNilQueue Handler 缺少 Queue
	ErrNilQueue = errors.New("taskqueue: nil queue")

	// ErrNilStore Handler 缺少 Store
	ErrNilStore = errors.New("taskqueue: nil store")

	// ErrDeliveryRejected 目标端以 4xx 拒绝投递，不再重试
	ErrDeliveryRejected = errors.New("taskqueue: delivery rejected")

	// ErrDeliveryFailed 目标端返回可重试的失败状态
	ErrDeliveryFailed = errors.New("taskqueue: delivery failed")
)
