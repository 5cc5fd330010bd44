package xlog_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xlog"
)

func Example() {
	logger, cleanup, err := xlog.New().
		SetOutput(os.Stdout).
		SetMode(xenv.Development).
		SetColor(false).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = cleanup() }()

	tr := xctx.Trace{TraceID: xctx.GenerateTraceID(), SpanID: xctx.GenerateSpanID()}
	_ = xctx.Run(context.Background(), tr, func(ctx context.Context) error {
		return logger.Warn(ctx, "retrying", xlog.Payload(xlog.Fields{"count": 3}))
	})
}

func ExampleLogger_Child() {
	logger, _, _ := xlog.New().SetMode(xenv.Production).Build()
	queue := logger.Child(xlog.Fields{"component": "queue"})
	_ = queue.Info(context.Background(), "started", slog.Int("workers", 4))
}
