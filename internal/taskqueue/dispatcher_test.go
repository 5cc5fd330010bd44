package taskqueue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xtrace"
	"github.com/lidz/tasks/pkg/resilience/xbreaker"
)

// fastPolicy 测试用的快速重试策略
var fastPolicy = RetryPolicy{MaxAttempts: 3, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, MaxDoublings: 2}

type received struct {
	traceparent string
	task        Task
}

// targetServer 记录收到的请求，按 statuses 依次应答（用尽后返回最后一个）
func targetServer(t *testing.T, statuses ...int) (*httptest.Server, func() []received) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []received
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var task Task
		_ = sonic.Unmarshal(body, &task)

		mu.Lock()
		calls = append(calls, received{traceparent: r.Header.Get(xtrace.HeaderTraceparent), task: task})
		n := len(calls)
		mu.Unlock()

		code := http.StatusOK
		if len(statuses) > 0 {
			code = statuses[min(n, len(statuses))-1]
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), calls...)
	}
}

func newTestDispatcher(t *testing.T, opts ...DispatcherOption) (*Dispatcher, *syncBuffer) {
	t.Helper()
	_, client := newRedis(t)
	logger, logs := newTestLogger(t)
	all := append([]DispatcherOption{
		WithDispatcherLogger(logger),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
		WithResolver(xtrace.NewResolver(xtrace.WithProjectID("p1"), xtrace.WithLogger(logger))),
	}, opts...)
	d, err := NewDispatcher(client, all...)
	require.NoError(t, err)
	return d, logs
}

func envelopeFor(url string) Envelope {
	tr := xctx.Trace{TraceID: upstreamTraceID, SpanID: upstreamSpanID, TraceFlags: xctx.FlagsSampled}
	ctx, _ := xctx.WithTrace(context.Background(), tr)
	task := validTask()
	task.URL = url
	return NewEnvelope(ctx, task, fastPolicy)
}

func TestNewDispatcher_NilClient(t *testing.T) {
	_, err := NewDispatcher(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestDispatch_Success(t *testing.T) {
	srv, calls := targetServer(t)
	d, logs := newTestDispatcher(t)

	env := envelopeFor(srv.URL + PathReceivedTask)
	require.NoError(t, d.Dispatch(context.Background(), env))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, env.Task, got[0].task)

	// 投递沿用信封的 trace ID，父 span 是本次投递
	tp, ok := xtrace.ParseTraceparent(got[0].traceparent)
	require.True(t, ok)
	assert.Equal(t, upstreamTraceID, tp.TraceID)
	assert.NotEqual(t, upstreamSpanID, tp.ParentID)
	assert.Equal(t, xctx.FlagsSampled, tp.Flags)

	assert.Contains(t, logs.String(), "taskqueue: delivered")
	assert.Contains(t, logs.String(), `"`+xlog.CloudKeyTrace+`":"projects/p1/traces/`+upstreamTraceID+`"`)
}

func TestDispatch_RetriesServerErrors(t *testing.T) {
	srv, calls := targetServer(t, http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK)
	d, _ := newTestDispatcher(t)

	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(srv.URL)))
	assert.Len(t, calls(), 3)
}

func TestDispatch_ExhaustsAttempts(t *testing.T) {
	srv, calls := targetServer(t, http.StatusInternalServerError)
	d, logs := newTestDispatcher(t)

	err := d.Dispatch(context.Background(), envelopeFor(srv.URL))
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Len(t, calls(), int(fastPolicy.MaxAttempts))
	assert.Contains(t, logs.String(), "taskqueue: delivery failed")
}

func TestDispatch_RejectedNotRetried(t *testing.T) {
	srv, calls := targetServer(t, http.StatusBadRequest)
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(context.Background(), envelopeFor(srv.URL))
	assert.ErrorIs(t, err, ErrDeliveryRejected)
	assert.Len(t, calls(), 1)
}

func TestDispatch_BadURL(t *testing.T) {
	d, _ := newTestDispatcher(t)
	err := d.Dispatch(context.Background(), envelopeFor("://bad"))
	assert.Error(t, err)
}

func TestDispatcher_Run(t *testing.T) {
	srv, calls := targetServer(t)
	_, client := newRedis(t)
	logger, _ := newTestLogger(t)

	q, err := NewRedisQueue(client, WithQueueKey("q:run"), WithQueueLogger(logger))
	require.NoError(t, err)
	d, err := NewDispatcher(client,
		WithDispatchQueueKey("q:run"),
		WithDispatcherLogger(logger),
		WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// 非法信封被丢弃，不影响后续
	require.NoError(t, client.LPush(context.Background(), "q:run", "garbage").Err())
	require.NoError(t, q.Enqueue(context.Background(), envelopeFor(srv.URL)))

	require.Eventually(t, func() bool { return len(calls()) == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}
}

// TestEndToEnd 入队、投递、接收三段使用同一 trace ID，重复投递被幂等拦截
func TestEndToEnd(t *testing.T) {
	_, client := newRedis(t)
	logger, logs := newTestLogger(t)

	q, err := NewRedisQueue(client, WithQueueLogger(logger))
	require.NoError(t, err)

	var (
		processed atomic.Int32
		seenTrace atomic.Value
	)
	h, err := NewHandler(q, NewMemoryStore(),
		WithHandlerLogger(logger),
		WithRetryPolicy(fastPolicy),
		WithProcessor(ProcessorFunc(func(ctx context.Context, _ Task) error {
			processed.Add(1)
			seenTrace.Store(xctx.TraceID(ctx))
			return nil
		})),
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	resolver := xtrace.NewResolver(xtrace.WithProjectID("p1"), xtrace.WithLogger(logger))
	srv := httptest.NewTLSServer(xtrace.HTTPMiddleware(resolver)(mux))
	t.Cleanup(srv.Close)

	d, err := NewDispatcher(client, WithDispatcherLogger(logger), WithHTTPClient(srv.Client()), WithResolver(resolver))
	require.NoError(t, err)

	// 1. 提交任务
	body := `{"id":7,"username":"ana","message":"hi","url":"` + srv.URL + PathReceivedTask + `"}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+PathHandleTask, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(xtrace.HeaderTraceparent, upstreamHeader)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 2. 出队投递
	items, err := client.LRange(context.Background(), DefaultQueueKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)
	var env Envelope
	require.NoError(t, sonic.UnmarshalString(items[0], &env))

	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, int32(1), processed.Load())
	assert.Equal(t, upstreamTraceID, seenTrace.Load())

	// 3. 重复投递：接收端返回 200 duplicate，不再处理
	require.NoError(t, d.Dispatch(context.Background(), env))
	assert.Equal(t, int32(1), processed.Load())

	assert.Contains(t, logs.String(), "Task task-7 already processed, skipping...")
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if strings.Contains(line, "xtrace:") {
			continue
		}
		assert.Contains(t, line, upstreamTraceID, "line: %s", line)
	}
}

func TestDispatch_BreakerOpensPerHost(t *testing.T) {
	srv, calls := targetServer(t, http.StatusInternalServerError)
	d, _ := newTestDispatcher(t, WithBreaker(
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(2)),
		xbreaker.WithTimeout(time.Minute),
	))

	err := d.Dispatch(context.Background(), envelopeFor(srv.URL))
	// 前两次到达目标后熔断，第三次被熔断器拒绝
	assert.True(t, xbreaker.IsOpen(err))
	assert.Len(t, calls(), 2)

	// 同一主机的后续信封直接被拒绝
	err = d.Dispatch(context.Background(), envelopeFor(srv.URL))
	assert.True(t, xbreaker.IsOpen(err))
	assert.Len(t, calls(), 2)

	// 其他主机不受影响
	other, otherCalls := targetServer(t)
	require.NoError(t, d.Dispatch(context.Background(), envelopeFor(other.URL)))
	assert.Len(t, otherCalls(), 1)
}

func TestDispatch_BreakerIgnoresRejections(t *testing.T) {
	srv, calls := targetServer(t, http.StatusBadRequest)
	d, _ := newTestDispatcher(t, WithBreaker(xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(1))))

	for i := 0; i < 3; i++ {
		err := d.Dispatch(context.Background(), envelopeFor(srv.URL))
		assert.ErrorIs(t, err, ErrDeliveryRejected)
	}
	assert.Len(t, calls(), 3, "4xx 不触发熔断")
}
