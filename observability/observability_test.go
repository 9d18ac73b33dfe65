package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFields(t *testing.T) {
	boom := errors.New("boom")
	type kv struct {
		Key string
		Val any
	}
	var got []kv
	for _, f := range []Field{
		String("theme", "sepia"),
		Int("page", 2),
		Int64("bytes", 1<<40),
		Float64("v", 0.25),
		Bool("underlay", true),
		Error("err", boom),
	} {
		got = append(got, kv{f.Key(), f.Value()})
	}
	want := []kv{
		{"theme", "sepia"},
		{"page", 2},
		{"bytes", int64(1 << 40)},
		{"v", 0.25},
		{"underlay", true},
		{"err", boom},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b error) bool { return a == b })); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
}

func TestNop(t *testing.T) {
	var l Logger = NopLogger{}
	if _, ok := l.With(String("k", "v")).(NopLogger); !ok {
		t.Fatalf("NopLogger.With returned another logger")
	}
	ctx := context.Background()
	got, span := NopTracer().StartSpan(ctx, SpanConvert)
	if got != ctx {
		t.Fatalf("nop tracer replaced the context")
	}
	span.SetTag("object", "7 0 R")
	span.SetError(errors.New("x"))
	span.Finish()
}
