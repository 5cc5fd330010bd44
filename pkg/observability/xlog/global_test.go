package xlog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Lazy(t *testing.T) {
	xlog.ResetDefault()
	t.Cleanup(xlog.ResetDefault)

	l := xlog.Default()
	require.NotNil(t, l)
	assert.Same(t, l, xlog.Default())
	assert.Equal(t, xlog.LevelInfo, l.GetLevel())
}

func TestSetDefault(t *testing.T) {
	xlog.ResetDefault()
	t.Cleanup(xlog.ResetDefault)

	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).SetMode(xenv.Production).SetLevel(xlog.LevelTrace).Build()
	require.NoError(t, err)

	xlog.SetDefault(logger)
	xlog.SetDefault(nil)
	assert.Same(t, logger, xlog.Default())

	ctx := context.Background()
	require.NoError(t, xlog.Trace(ctx, "t"))
	require.NoError(t, xlog.Debug(ctx, "d"))
	require.NoError(t, xlog.Info(ctx, "i"))
	require.NoError(t, xlog.Warn(ctx, "w"))
	require.NoError(t, xlog.Error(ctx, "e"))
	require.NoError(t, xlog.Fatal(ctx, "f"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 6)
	assert.Equal(t, "CRITICAL", lines[5][xlog.CloudKeySeverity])
}

func TestGlobal_AddSourcePointsAtCaller(t *testing.T) {
	xlog.ResetDefault()
	t.Cleanup(xlog.ResetDefault)

	var buf bytes.Buffer
	logger, _, err := xlog.New().SetOutput(&buf).SetMode(xenv.Production).SetAddSource(true).Build()
	require.NoError(t, err)
	xlog.SetDefault(logger)

	require.NoError(t, xlog.Info(context.Background(), "here"))
	loc, ok := decodeOne(t, &buf)[xlog.CloudKeySourceLocation].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, loc["file"], "global_test.go")
}

func TestDefault_Fallback(t *testing.T) {
	xlog.ResetDefault()
	t.Cleanup(xlog.ResetDefault)
	restore := xlog.SetNewBuilderForTest(func() *xlog.Builder {
		return xlog.New().SetLevelString("invalid")
	})
	t.Cleanup(restore)

	l := xlog.Default()
	require.NotNil(t, l)
	assert.NotPanics(t, func() { _ = l.Debug(context.Background(), "discarded") })
}
