package xtrace_test

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xtrace"
	"github.com/stretchr/testify/require"
)

const (
	upstreamTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	upstreamSpanID  = "00f067aa0ba902b7"
	upstreamHeader  = "00-" + upstreamTraceID + "-" + upstreamSpanID + "-01"
)

// newBufferLogger 生产模式 logger，输出写入 buf
func newBufferLogger(t *testing.T, buf *bytes.Buffer) xlog.Logger {
	t.Helper()
	logger, _, err := xlog.New().SetOutput(buf).SetMode(xenv.Production).Build()
	require.NoError(t, err)
	return logger
}

// newResolver 日志写入丢弃 buffer 的 Resolver
func newResolver(t *testing.T, opts ...xtrace.Option) *xtrace.Resolver {
	t.Helper()
	var buf bytes.Buffer
	all := append([]xtrace.Option{xtrace.WithLogger(newBufferLogger(t, &buf))}, opts...)
	return xtrace.NewResolver(all...)
}

// requireHex 断言 s 是长度为 n 的小写十六进制
func requireHex(t *testing.T, s string, n int) {
	t.Helper()
	require.Len(t, s, n)
	_, err := hex.DecodeString(s)
	require.NoError(t, err, "not hex: %q", s)
	require.Equal(t, strings.ToLower(s), s)
}
