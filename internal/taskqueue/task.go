package taskqueue

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/lidz/tasks/pkg/resilience/xretry"
)

// Task 任务载荷
type Task struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Message  string `json:"message"`
	URL      string `json:"url"`
}

// Validate 校验字段：ID 为正数，字符串非空，URL 为绝对 https 地址。
// 返回的错误包装 ErrInvalidTask。
func (t Task) Validate() error {
	switch {
	case t.ID <= 0:
		return fmt.Errorf("%w: id must be positive", ErrInvalidTask)
	case t.Username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidTask)
	case t.Message == "":
		return fmt.Errorf("%w: message is required", ErrInvalidTask)
	case t.URL == "":
		return fmt.Errorf("%w: url is required", ErrInvalidTask)
	}

	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %w", ErrInvalidTask, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute https URL", ErrInvalidTask)
	}
	return nil
}

// Name 任务名，同时用作去重键和幂等键
func (t Task) Name() string {
	return "task-" + strconv.FormatInt(t.ID, 10)
}

// =============================================================================
// 重试策略
// =============================================================================

// RetryPolicy 投递失败时的重试策略。
//
// 退避从 MinBackoff 开始每次翻倍，最多翻倍 MaxDoublings 次，且不超过 MaxBackoff。
type RetryPolicy struct {
	MaxAttempts  uint          `json:"maxAttempts"`
	MinBackoff   time.Duration `json:"minBackoff"`
	MaxBackoff   time.Duration `json:"maxBackoff"`
	MaxDoublings uint          `json:"maxDoublings"`
}

// DefaultRetryPolicy 5 次尝试，退避 10s, 20s, 40s, 80s, 160s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		MinBackoff:   10 * time.Second,
		MaxBackoff:   300 * time.Second,
		MaxDoublings: 4,
	}
}

// Backoff 转换为 xretry 退避策略
func (p RetryPolicy) Backoff() xretry.Backoff {
	if p.MinBackoff <= 0 {
		return xretry.ConstantBackoff(0)
	}
	limit := p.MaxBackoff
	if p.MaxDoublings < 63 && p.MinBackoff <= math.MaxInt64>>p.MaxDoublings {
		if doubled := p.MinBackoff << p.MaxDoublings; limit <= 0 || doubled < limit {
			limit = doubled
		}
	}
	if limit < p.MinBackoff {
		limit = p.MinBackoff
	}
	return &xretry.ExponentialBackoff{
		Initial:    p.MinBackoff,
		Max:        limit,
		Multiplier: 2,
	}
}
