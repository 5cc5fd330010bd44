package xretry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff 计算第 attempt 次重试前的等待时间，attempt 从 1 开始
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff 带抖动的指数退避
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // 0~1，延迟在 ±Jitter 比例内随机浮动
}

// DefaultBackoff 100ms 起步、翻倍、上限 5s、10% 抖动
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    100 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// NextDelay 实现 Backoff
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.Jitter > 0 {
		delay *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	// attempt 极大时 Pow 溢出为 +Inf，乘以抖动可能得到 NaN，比较会失效
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// ConstantBackoff 固定间隔
type ConstantBackoff time.Duration

// NextDelay 实现 Backoff
func (b ConstantBackoff) NextDelay(int) time.Duration {
	return time.Duration(b)
}
