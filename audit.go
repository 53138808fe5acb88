package goToken

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuditEvent is one security-relevant engine outcome.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	JTI       string            `json:"jti,omitempty"`
	IP        string            `json:"ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events into a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZerologSink writes audit events through a zerolog logger. Failed events
// log at warn, reuse detection at error.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger.With().Str("stream", "audit").Logger()}
}

func (s *ZerologSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil {
		return
	}

	ev := s.logger.Info()
	switch {
	case event.EventType == auditEventRefreshReuseDetected:
		ev = s.logger.Error()
	case !event.Success:
		ev = s.logger.Warn()
	}

	ev = ev.Time("event_time", event.Timestamp).
		Str("event_type", event.EventType).
		Bool("success", event.Success)
	if event.Subject != "" {
		ev = ev.Str("subject", event.Subject)
	}
	if event.JTI != "" {
		ev = ev.Str("jti", event.JTI)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.RequestID != "" {
		ev = ev.Str("request_id", event.RequestID)
	}
	if event.Error != "" {
		ev = ev.Str("error_code", event.Error)
	}
	for k, v := range event.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
}
