package xlimit

import "errors"

var (
	// ErrNilClient Redis 客户端为空
	ErrNilClient = errors.New("xlimit: redis client is nil")
	// ErrInvalidLimit Rate 或 Period 不是正数
	ErrInvalidLimit = errors.New("xlimit: rate and period must be positive")
)
