package conversations

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultTimeout = 5 * time.Second

// Memory is the pipeline's view of a Store. It never fails a turn: read
// errors yield an empty context and write errors are logged.
type Memory struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

type MemoryOption func(*Memory)

// WithTimeout bounds every store call. Zero disables the bound.
func WithTimeout(timeout time.Duration) MemoryOption {
	return func(m *Memory) { m.timeout = timeout }
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(store Store, opts ...MemoryOption) *Memory {
	m := &Memory{store: store, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Store() Store { return m.store }

func (m *Memory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// CumulativeContext returns the context to hand to the model for the next
// turn of sessionID. Only the latest record is read.
func (m *Memory) CumulativeContext(ctx context.Context, sessionID string) string {
	if sessionID == "" || m == nil || m.store == nil {
		return ""
	}

	ctx, span := tracer.Start(ctx, "read cumulative context")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	latest, err := m.store.Latest(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return ""
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to read conversation context", "session_id", sessionID, "error", err)
		return ""
	}

	conversationContext := FormatContext(latest)
	span.SetAttributes(attribute.Int("context.length", len(conversationContext)))
	return conversationContext
}

// SaveInteraction appends record. Failures are logged and returned for
// callers that want to report them; they never need to be handled.
func (m *Memory) SaveInteraction(ctx context.Context, record Record) error {
	if m == nil || m.store == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "save interaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", record.SessionID),
		attribute.String("run.id", record.RunID),
	)

	if record.Timestamp.IsZero() {
		record.Timestamp = m.now().UTC()
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.store.Append(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to save interaction",
			"session_id", record.SessionID, "run_id", record.RunID, "error", err)
		return err
	}
	return nil
}

func (m *Memory) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}
