package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// LogSink writes events to the global zerolog logger.
type LogSink struct{}

// Emit implements Sink.
func (LogSink) Emit(_ context.Context, e Event) {
	ev := log.Info()
	switch e.Type {
	case QueryFailed, AgentFailed, FallbackUsed:
		ev = log.Warn()
	case AgentResponded, SegmentDisplayed:
		ev = log.Debug()
	}
	ev = ev.Str("event", string(e.Type))
	if e.RunID != "" {
		ev = ev.Str("run_id", e.RunID)
	}
	for k, v := range e.Data {
		ev = ev.Interface(k, v)
	}
	ev.Msg(e.Message)
}

// NATSSink publishes each event as JSON on "<subject>.<type>".
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("docreview"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if subject == "" {
		subject = "docreview.events"
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Emit implements Sink. Publish errors are logged and dropped.
func (s *NATSSink) Emit(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("marshal event")
		return
	}
	if err := s.conn.Publish(s.subject+"."+string(e.Type), data); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("publish event to nats")
	}
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
