package xbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Option 熔断器选项
type Option func(*settings)

type settings struct {
	trip          TripPolicy
	success       SuccessPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)
}

// WithTripPolicy 熔断策略，默认连续失败 5 次
func WithTripPolicy(p TripPolicy) Option {
	return func(s *settings) {
		if p != nil {
			s.trip = p
		}
	}
}

// WithSuccessPolicy 成功判定，默认 err == nil
func WithSuccessPolicy(p SuccessPolicy) Option {
	return func(s *settings) {
		s.success = p
	}
}

// WithTimeout 打开状态持续多久后转为半开，默认 60s
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInterval 关闭状态下清空计数的周期，0 表示不清空
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		s.interval = d
	}
}

// WithMaxRequests 半开状态放行的探测请求数，默认 1
func WithMaxRequests(n uint32) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRequests = n
		}
	}
}

// WithOnStateChange 状态变化回调，在 gobreaker 的锁内同步调用，不要阻塞
func WithOnStateChange(f func(name string, from, to State)) Option {
	return func(s *settings) {
		s.onStateChange = f
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		trip:        NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// =============================================================================
// Breaker
// =============================================================================

// Breaker 熔断器，可并发使用
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreaker 创建熔断器
func NewBreaker(name string, opts ...Option) *Breaker {
	return newBreaker(name, newSettings(opts))
}

func newBreaker(name string, s settings) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.maxRequests,
		Interval:    s.interval,
		Timeout:     s.timeout,
		ReadyToTrip: s.trip.ReadyToTrip,
	}
	if s.success != nil {
		st.IsSuccessful = s.success.IsSuccessful
	}
	if s.onStateChange != nil {
		st.OnStateChange = s.onStateChange
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker[any](st)}
}

// Do 经过熔断器执行 fn。
//
// 熔断器拒绝时返回 *BreakerError，fn 的错误原样返回。ctx 已结束时不执行 fn。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return wrapBreakerError(err, b.name)
}

// Name 名称
func (b *Breaker) Name() string { return b.name }

// State 当前状态
func (b *Breaker) State() State { return b.cb.State() }

// Counts 当前统计
func (b *Breaker) Counts() Counts { return b.cb.Counts() }

// =============================================================================
// Set
// =============================================================================

// Set 按名称懒创建、共享配置的一组熔断器
type Set struct {
	s        settings
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewSet 创建 Set，opts 作用于其中每个熔断器
func NewSet(opts ...Option) *Set {
	return &Set{s: newSettings(opts), breakers: make(map[string]*Breaker)}
}

// Get 返回名为 name 的熔断器，不存在时创建
func (s *Set) Get(name string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[name]; ok {
		return b
	}
	b = newBreaker(name, s.s)
	s.breakers[name] = b
	return b
}

// Names 已创建的熔断器名称，顺序不定
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	return names
}
