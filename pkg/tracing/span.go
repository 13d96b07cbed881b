// Package tracing times the stages of a request as a tree of spans carried
// in the context. A finished tree is written as one structured debug record
// keyed by the request id, e.g. search > rank, resolve.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
)

type spanKey struct{}

type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Start opens a span. Inside an existing span it becomes a child; otherwise
// it is a root whose trace id is the request id of ctx.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else {
		s.traceID = logger.RequestID(ctx)
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

// FromContext returns the innermost open span, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		s.duration = time.Since(s.start)
	}
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) TraceID() string { return s.traceID }

func (s *Span) Set(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// LogValue renders the span and its children as nested groups.
func (s *Span) LogValue() slog.Value {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+2+len(s.children))
	attrs = append(attrs, slog.Int64("duration_us", s.duration.Microseconds()))
	attrs = append(attrs, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	for _, c := range children {
		attrs = append(attrs, slog.Attr{Key: c.name, Value: c.LogValue()})
	}
	return slog.GroupValue(attrs...)
}

// Finish ends s and logs the whole tree at debug level.
func (s *Span) Finish(ctx context.Context) {
	s.End()
	slog.Default().DebugContext(ctx, "trace",
		"trace_id", s.traceID,
		slog.Attr{Key: s.name, Value: s.LogValue()},
	)
}
