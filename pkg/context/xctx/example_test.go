package xctx_test

import (
	"context"
	"fmt"

	"github.com/lidz/tasks/pkg/context/xctx"
)

func ExampleRun() {
	tr := xctx.Trace{
		TraceID:        "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:         "00f067aa0ba902b7",
		TraceFlags:     xctx.FlagsSampled,
		FormattedTrace: "projects/proj-1/traces/4bf92f3577b34da6a3ce929d0e0e4736",
	}

	_ = xctx.Run(context.Background(), tr, func(ctx context.Context) error {
		fmt.Println(xctx.TraceID(ctx))
		fmt.Println(xctx.FormattedTrace(ctx))
		return nil
	})

	_, ok := xctx.Current(context.Background())
	fmt.Println(ok)

	// Output:
	// 4bf92f3577b34da6a3ce929d0e0e4736
	// projects/proj-1/traces/4bf92f3577b34da6a3ce929d0e0e4736
	// false
}
