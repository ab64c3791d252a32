package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one relationship or account operation and logs its outcome.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan derives a child span from ctx. The returned context carries a logger
// tagged with trace_id, span_id and, for nested spans, parent_span_id.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)
	t := traceFrom(ctx)

	if t.traceID == "" {
		t.traceID = uuid.NewString()
		logger = logger.With(slog.String("trace_id", t.traceID))
	} else if t.spanID == "" {
		logger = logger.With(slog.String("trace_id", t.traceID))
	}

	parent := t.spanID
	t.spanID = uuid.NewString()

	logger = logger.With(
		slog.String("span_id", t.spanID),
		slog.String("span_name", name),
	)
	if parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}

	ctx = withTrace(WithLogger(ctx, logger), t)
	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail records err as the span outcome and returns it unchanged.
func (s *Span) Fail(err error) error {
	if s != nil && err != nil {
		s.err = err
	}
	return err
}

// End emits the completion entry. Failed spans log at debug with the error so
// expected rejections do not drown out handler-level warnings.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Debug("span failed", elapsed, slog.String("error", s.err.Error()))
		return
	}
	s.logger.Info("span completed", elapsed)
}
