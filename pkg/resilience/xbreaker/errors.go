package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// ErrNilFunc Do 的函数为空
var ErrNilFunc = errors.New("xbreaker: function cannot be nil")

// BreakerError 熔断器拒绝执行时返回的错误
type BreakerError struct {
	Err   error // gobreaker.ErrOpenState 或 gobreaker.ErrTooManyRequests
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

func wrapBreakerError(err error, name string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState):
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	}
	return err
}

// IsOpen err 是否因熔断器打开而被拒绝
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsRejected err 是否被熔断器拒绝（打开或半开时超出探测数）
func IsRejected(err error) bool {
	var be *BreakerError
	return errors.As(err, &be)
}
