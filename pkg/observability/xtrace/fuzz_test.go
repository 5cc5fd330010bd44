package xtrace_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/lidz/tasks/pkg/observability/xtrace"
)

func FuzzParseTraceparent(f *testing.F) {
	f.Add(upstreamHeader)
	f.Add("")
	f.Add("---")
	f.Add("00-abc-def")
	f.Add("中文-追踪-标识-01")

	f.Fuzz(func(t *testing.T, s string) {
		tp, ok := xtrace.ParseTraceparent(s)
		if !ok {
			if tp != (xtrace.Traceparent{}) {
				t.Errorf("rejected input returned %+v", tp)
			}
			return
		}
		if tp.TraceID == "" {
			t.Error("accepted empty trace id")
		}
		if got := strings.Count(strings.TrimSpace(s), "-"); got != 3 {
			t.Errorf("accepted %d separators", got)
		}
	})
}

func FuzzResolve(f *testing.F) {
	f.Add(upstreamHeader)
	f.Add("00-" + upstreamTraceID + "-01")
	f.Add("a-b-c-d")

	f.Fuzz(func(t *testing.T, header string) {
		r := xtrace.NewResolver(xtrace.WithProjectID("p"), xtrace.WithSpanSource(nil))
		h := http.Header{}
		h.Set(xtrace.HeaderTraceparent, header)

		tr := r.Resolve(context.Background(), h)
		if !tr.IsComplete() {
			t.Fatalf("incomplete trace %+v", tr)
		}
		if tr.FormattedTrace != "projects/p/traces/"+tr.TraceID {
			t.Errorf("FormattedTrace = %q", tr.FormattedTrace)
		}
		if tp, ok := xtrace.ParseTraceparent(header); ok && tr.SpanID == tp.ParentID {
			t.Error("upstream parent id reused")
		}
	})
}
