package xbreaker

import "github.com/sony/gobreaker/v2"

// State 熔断器状态
type State = gobreaker.State

// Counts 当前统计周期的计数
type Counts = gobreaker.Counts

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// TripPolicy 决定何时打开熔断器
type TripPolicy interface {
	ReadyToTrip(counts Counts) bool
}

// SuccessPolicy 决定哪些结果算成功
type SuccessPolicy interface {
	IsSuccessful(err error) bool
}

// SuccessFunc 函数形式的 SuccessPolicy
type SuccessFunc func(err error) bool

func (f SuccessFunc) IsSuccessful(err error) bool {
	return f(err)
}

// ConsecutiveFailuresPolicy 连续失败达到阈值时熔断
type ConsecutiveFailuresPolicy struct {
	threshold uint32
}

// NewConsecutiveFailures threshold 为 0 时按 1 处理
func NewConsecutiveFailures(threshold uint32) *ConsecutiveFailuresPolicy {
	return &ConsecutiveFailuresPolicy{threshold: max(threshold, 1)}
}

func (p *ConsecutiveFailuresPolicy) ReadyToTrip(counts Counts) bool {
	return counts.ConsecutiveFailures >= p.threshold
}

// FailureRatioPolicy 请求数不少于 minRequests 且失败率达到 ratio 时熔断
type FailureRatioPolicy struct {
	ratio       float64
	minRequests uint32
}

// NewFailureRatio ratio 取值 (0, 1]，越界时截断
func NewFailureRatio(ratio float64, minRequests uint32) *FailureRatioPolicy {
	ratio = min(max(ratio, 0.01), 1)
	return &FailureRatioPolicy{ratio: ratio, minRequests: max(minRequests, 1)}
}

func (p *FailureRatioPolicy) ReadyToTrip(counts Counts) bool {
	if counts.Requests < p.minRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.ratio
}
