package xctx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BindsWithinExtent(t *testing.T) {
	tr := xctx.Trace{TraceID: "t-run", SpanID: "s-run", TraceFlags: "00"}
	parent := context.Background()

	err := xctx.Run(parent, tr, func(ctx context.Context) error {
		got, ok := xctx.Current(ctx)
		require.True(t, ok)
		assert.Equal(t, tr, got)
		return nil
	})
	require.NoError(t, err)

	// 范围外不可见
	_, ok := xctx.Current(parent)
	assert.False(t, ok)
}

func TestRun_ReturnsBodyError(t *testing.T) {
	want := errors.New("boom")
	err := xctx.Run(context.Background(), xctx.Trace{}, func(context.Context) error {
		return want
	})
	require.ErrorIs(t, err, want)
}

func TestRun_InvalidArgs(t *testing.T) {
	var nilCtx context.Context
	err := xctx.Run(nilCtx, xctx.Trace{}, func(context.Context) error { return nil })
	require.ErrorIs(t, err, xctx.ErrNilContext)

	err = xctx.Run(context.Background(), xctx.Trace{}, nil)
	require.ErrorIs(t, err, xctx.ErrNilFunc)
}

func TestRun_VisibleAcrossGoroutines(t *testing.T) {
	tr := xctx.Trace{TraceID: "t-async", SpanID: "s-async"}

	err := xctx.Run(context.Background(), tr, func(ctx context.Context) error {
		results := make(chan string, 3)
		var wg sync.WaitGroup
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// 模拟一次异步挂起
				time.Sleep(time.Millisecond)
				results <- xctx.TraceID(ctx)
			}()
		}
		wg.Wait()
		close(results)
		for id := range results {
			assert.Equal(t, "t-async", id)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRun_ConcurrentExtentsIsolated(t *testing.T) {
	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := xctx.GenerateTraceID()
			errs[i] = xctx.Run(context.Background(), xctx.Trace{TraceID: want}, func(ctx context.Context) error {
				for range 10 {
					time.Sleep(100 * time.Microsecond)
					if got := xctx.TraceID(ctx); got != want {
						return errors.New("observed foreign binding: " + got)
					}
				}
				return nil
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "extent %d", i)
	}
}

func TestRun_NestedShadowing(t *testing.T) {
	outer := xctx.Trace{TraceID: "outer", SpanID: "o"}
	inner := xctx.Trace{TraceID: "inner", SpanID: "i"}

	err := xctx.Run(context.Background(), outer, func(ctx context.Context) error {
		err := xctx.Run(ctx, inner, func(ictx context.Context) error {
			assert.Equal(t, "inner", xctx.TraceID(ictx))
			return nil
		})
		assert.Equal(t, "outer", xctx.TraceID(ctx))
		return err
	})
	require.NoError(t, err)
}

func TestRun_CancelsOnReturn(t *testing.T) {
	var captured context.Context
	err := xctx.Run(context.Background(), xctx.Trace{TraceID: "t"}, func(ctx context.Context) error {
		captured = ctx
		assert.NoError(t, ctx.Err())
		return nil
	})
	require.NoError(t, err)

	select {
	case <-captured.Done():
	default:
		t.Fatal("derived context not cancelled after Run returned")
	}
}

func TestRun_CancelsOnPanic(t *testing.T) {
	var captured context.Context
	assert.PanicsWithValue(t, "boom", func() {
		_ = xctx.Run(context.Background(), xctx.Trace{TraceID: "t"}, func(ctx context.Context) error {
			captured = ctx
			panic("boom")
		})
	})
	require.NotNil(t, captured)
	assert.ErrorIs(t, captured.Err(), context.Canceled)
}

func TestRun_ParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	err := xctx.Run(parent, xctx.Trace{TraceID: "t"}, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}
