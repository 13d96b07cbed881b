package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
)

func TestChildSpansJoinTheTrace(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx, root := Start(ctx, "search")
	_, child := Start(ctx, "rank")
	child.Set("cache_hit", true)
	child.End()

	if root.TraceID() != "req-1" || child.TraceID() != "req-1" {
		t.Errorf("trace ids = %q, %q", root.TraceID(), child.TraceID())
	}
	if kids := root.Children(); len(kids) != 1 || kids[0] != child {
		t.Fatalf("child not attached: %v", kids)
	}
	if FromContext(context.Background()) != nil {
		t.Error("expected no span in empty context")
	}

	root.End()
	d := root.Duration()
	root.End()
	if root.Duration() != d {
		t.Error("second End changed the duration")
	}
}

func TestFinishLogsTree(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, "debug", "json"))
	defer slog.SetDefault(prev)

	ctx, root := Start(logger.WithRequestID(context.Background(), "req-7"), "search")
	_, rank := Start(ctx, "rank")
	rank.Set("cache_hit", false)
	rank.End()
	root.Finish(ctx)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decoding %q: %v", buf.String(), err)
	}
	if rec["trace_id"] != "req-7" {
		t.Errorf("trace_id = %v", rec["trace_id"])
	}
	search, ok := rec["search"].(map[string]any)
	if !ok {
		t.Fatalf("missing search group: %v", rec)
	}
	rankGroup, ok := search["rank"].(map[string]any)
	if !ok || rankGroup["cache_hit"] != false {
		t.Errorf("unexpected rank group: %v", search["rank"])
	}
}
