package taskqueue

import (
	"context"
	"net/http"
	"time"

	"github.com/lidz/tasks/pkg/observability/xtrace"
)

// Envelope 入队的任务信封：任务本身加回调所需的请求信息。
//
// Headers 中的 traceparent 来自入队请求，投递时原样带给目标端。
type Envelope struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	Task       Task              `json:"task"`
	Retry      RetryPolicy       `json:"retry"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// NewEnvelope 为 t 创建信封，从 ctx 注入追踪身份。
// 调用方需保证 t 已通过 Validate。
func NewEnvelope(ctx context.Context, t Task, policy RetryPolicy) Envelope {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	xtrace.InjectToHeader(ctx, h)

	headers := make(map[string]string, len(h))
	for k := range h {
		headers[k] = h.Get(k)
	}

	return Envelope{
		Name:       t.Name(),
		URL:        t.URL,
		Method:     http.MethodPost,
		Headers:    headers,
		Task:       t,
		Retry:      policy,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Header 以 http.Header 形式返回 Headers
func (e Envelope) Header() http.Header {
	h := make(http.Header, len(e.Headers))
	for k, v := range e.Headers {
		h.Set(k, v)
	}
	return h
}
