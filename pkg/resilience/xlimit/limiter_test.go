package xlimit_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/resilience/xlimit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedisValidation(t *testing.T) {
	_, client := setupRedis(t)

	_, err := xlimit.NewRedis(nil, xlimit.PerSecond(1))
	assert.ErrorIs(t, err, xlimit.ErrNilClient)

	_, err = xlimit.NewRedis(client, xlimit.Limit{Rate: 0, Period: time.Second})
	assert.ErrorIs(t, err, xlimit.ErrInvalidLimit)
	_, err = xlimit.NewRedis(client, xlimit.Limit{Rate: 1})
	assert.ErrorIs(t, err, xlimit.ErrInvalidLimit)
}

func TestRedisLimiterExhaustsQuota(t *testing.T) {
	mr, client := setupRedis(t)
	l, err := xlimit.NewRedis(client, xlimit.PerMinute(3), xlimit.WithPrefix("rl:"))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "第 %d 个请求", i+1)
		assert.Equal(t, 3-i-1, res.Remaining)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.Equal(t, 3, res.Limit)
	// redis_rate 在前缀之外再加自己的 "rate:"
	assert.True(t, mr.Exists("rate:rl:10.0.0.1"))

	// 其他 key 独立计数
	res, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "10.0.0.1"))
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestResultHeaders(t *testing.T) {
	res := &xlimit.Result{Limit: 10, Remaining: 0, RetryAfter: 1500 * time.Millisecond, ResetAt: time.Unix(1700000000, 0)}
	h := res.Headers()
	assert.Equal(t, "10", h["X-RateLimit-Limit"])
	assert.Equal(t, "0", h["X-RateLimit-Remaining"])
	assert.Equal(t, "1700000000", h["X-RateLimit-Reset"])
	assert.Equal(t, "2", h["Retry-After"], "向上取整")

	rec := httptest.NewRecorder()
	(&xlimit.Result{}).SetHeaders(rec)
	assert.Empty(t, rec.Header())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		remote string
		want   string
	}{
		{"X-Forwarded-For 第一项", http.Header{"X-Forwarded-For": {"1.1.1.1, 2.2.2.2"}}, "3.3.3.3:80", "1.1.1.1"},
		{"X-Real-IP", http.Header{"X-Real-Ip": {"4.4.4.4"}}, "3.3.3.3:80", "4.4.4.4"},
		{"RemoteAddr", http.Header{}, "3.3.3.3:80", "3.3.3.3"},
		{"RemoteAddr 无端口", http.Header{}, "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header = tt.header
			r.RemoteAddr = tt.remote
			assert.Equal(t, tt.want, xlimit.ClientIP(r))
		})
	}
}

// =============================================================================
// HTTP 中间件
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPMiddlewareDenies(t *testing.T) {
	_, client := setupRedis(t)
	l, err := xlimit.NewRedis(client, xlimit.PerMinute(1))
	require.NoError(t, err)
	h := xlimit.HTTPMiddleware(l)(okHandler())

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/handleTask", nil))
		return rec
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := do()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "Too Many Requests", second.Body.String())
}

func TestHTTPMiddlewareSkipAndDeny(t *testing.T) {
	_, client := setupRedis(t)
	l, err := xlimit.NewRedis(client, xlimit.PerMinute(1))
	require.NoError(t, err)

	h := xlimit.HTTPMiddleware(l,
		xlimit.WithSkipFunc(func(r *http.Request) bool { return r.URL.Path == "/healthz" }),
		xlimit.WithKeyFunc(func(*http.Request) string { return "global" }),
		xlimit.WithDenyHandler(func(w http.ResponseWriter, _ *http.Request, _ *xlimit.Result) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
	)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "跳过的路径不计数")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/b", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*xlimit.Result, error) {
	return nil, errors.New("redis down")
}

func TestHTTPMiddlewareFailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).SetMode(xenv.Production).Build()
	require.NoError(t, err)

	h := xlimit.HTTPMiddleware(failingLimiter{}, xlimit.WithLogger(logger))(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/handleTask", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "xlimit: limiter unavailable")
	assert.Contains(t, buf.String(), "redis down")
}

func TestHTTPMiddlewareNilLimiter(t *testing.T) {
	assert.Panics(t, func() { xlimit.HTTPMiddleware(nil) })
}
