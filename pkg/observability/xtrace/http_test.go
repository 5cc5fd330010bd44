package xtrace_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xtrace"
)

func TestHTTPMiddleware_BindsTrace(t *testing.T) {
	r := newResolver(t, xtrace.WithProjectID("p1"))

	var (
		got      xctx.Trace
		bound    bool
		asyncSaw string
		wg       sync.WaitGroup
	)
	handler := xtrace.HTTPMiddleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, bound = xctx.Current(req.Context())
		wg.Add(1)
		go func() {
			defer wg.Done()
			asyncSaw = xctx.TraceID(req.Context())
		}()
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(xtrace.HeaderTraceparent, upstreamHeader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	wg.Wait()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, bound)
	assert.Equal(t, upstreamTraceID, got.TraceID)
	assert.NotEqual(t, upstreamSpanID, got.SpanID)
	assert.Equal(t, "projects/p1/traces/"+upstreamTraceID, got.FormattedTrace)
	assert.Equal(t, upstreamTraceID, asyncSaw, "goroutines spawned in the extent see the binding")

	_, leaked := xctx.Current(req.Context())
	assert.False(t, leaked, "binding does not leak to the outer request")
}

func TestHTTPMiddleware_LogsCorrelated(t *testing.T) {
	var logBuf bytes.Buffer
	logger := newBufferLogger(t, &logBuf)
	r := newResolver(t, xtrace.WithProjectID("p1"))

	handler := xtrace.HTTPMiddleware(r)(http.HandlerFunc(func(_ http.ResponseWriter, req *http.Request) {
		_ = logger.Info(req.Context(), "first")
		_ = logger.Info(req.Context(), "second")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(xtrace.HeaderTraceparent, upstreamHeader)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(logBuf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, string(line), `"`+xlog.CloudKeyTrace+`":"projects/p1/traces/`+upstreamTraceID+`"`)
		assert.Contains(t, string(line), `"`+xlog.CloudKeyTraceSampled+`":true`)
	}
}

func TestHTTPMiddleware_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(_ http.ResponseWriter, req *http.Request) {
		_, ok := xctx.Current(req.Context())
		assert.False(t, ok)
	})

	xtrace.HTTPMiddleware(newResolver(t, xtrace.WithEnabled(false)))(next).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	xtrace.HTTPMiddleware(nil)(next).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestHTTPMiddleware_ConcurrentRequestsIsolated(t *testing.T) {
	r := newResolver(t)
	handler := xtrace.HTTPMiddleware(r)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(xctx.TraceID(req.Context())))
	}))

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			results[i] = rec.Body.String()
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range results {
		requireHex(t, id, 32)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestInjectToRequest(t *testing.T) {
	tr := xctx.Trace{TraceID: upstreamTraceID, SpanID: upstreamSpanID, TraceFlags: "01"}
	ctx, err := xctx.WithTrace(context.Background(), tr)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)
	req.Header.Set(xtrace.HeaderTraceparent, "stale")

	xtrace.InjectToRequest(ctx, req)
	assert.Equal(t, []string{upstreamHeader}, req.Header.Values(xtrace.HeaderTraceparent))

	// Header 为 nil 时自动创建
	bare := &http.Request{}
	xtrace.InjectToRequest(ctx, bare)
	assert.Equal(t, upstreamHeader, bare.Header.Get(xtrace.HeaderTraceparent))

	assert.NotPanics(t, func() { xtrace.InjectToRequest(ctx, nil) })
}

func TestInjectToHeader_NoTrace(t *testing.T) {
	h := http.Header{}
	xtrace.InjectToHeader(context.Background(), h)
	assert.Empty(t, h)

	// flags 缺失时默认 00
	ctx, err := xctx.WithTrace(context.Background(), xctx.Trace{TraceID: "a", SpanID: "b"})
	require.NoError(t, err)
	xtrace.InjectToHeader(ctx, h)
	assert.Equal(t, "00-a-b-00", h.Get(xtrace.HeaderTraceparent))

	assert.NotPanics(t, func() { xtrace.InjectToHeader(ctx, nil) })
}

// 出站请求携带的 traceparent 被下游 Resolver 采用
func TestInjectThenResolve(t *testing.T) {
	upstream := newResolver(t)
	downstream := newResolver(t)

	var downstreamTrace xctx.Trace
	server := httptest.NewServer(xtrace.HTTPMiddleware(downstream)(http.HandlerFunc(
		func(_ http.ResponseWriter, req *http.Request) {
			downstreamTrace, _ = xctx.Current(req.Context())
		})))
	defer server.Close()

	tr := upstream.Resolve(context.Background(), nil)
	err := xctx.Run(context.Background(), tr, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		if err != nil {
			return err
		}
		xtrace.InjectToRequest(ctx, req)
		resp, err := server.Client().Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
	require.NoError(t, err)

	assert.Equal(t, tr.TraceID, downstreamTrace.TraceID)
	assert.NotEqual(t, tr.SpanID, downstreamTrace.SpanID)
	assert.Equal(t, xctx.FlagsNotSampled, downstreamTrace.TraceFlags)
}
