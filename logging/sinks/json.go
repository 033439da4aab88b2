package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"lockstep/client/logging"
)

// JSON emits newline-delimited structured events.
type JSON struct {
	mu        sync.Mutex
	writer    *bufio.Writer
	encoder   *json.Encoder
	autoFlush bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewJSON constructs a JSON sink writing to the provided io.Writer.
func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{writer: buf, encoder: json.NewEncoder(buf), autoFlush: flushInterval <= 0, stop: make(chan struct{})}
	if flushInterval > 0 {
		go sink.periodicFlush(flushInterval)
	}
	return sink
}

// jsonRecord is one line of the file. Empty fields are left out so a
// frame-by-frame log stays compact.
type jsonRecord struct {
	Type      logging.EventType `json:"type"`
	Frame     uint32            `json:"frame,omitempty"`
	Time      string            `json:"time"`
	Severity  string            `json:"severity"`
	Category  string            `json:"category,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Targets   []string          `json:"targets,omitempty"`
	Payload   any               `json:"payload,omitempty"`
	Extra     map[string]any    `json:"extra,omitempty"`
	TraceID   string            `json:"traceId,omitempty"`
	CommandID string            `json:"commandId,omitempty"`
}

// Write satisfies logging.Sink.
func (s *JSON) Write(event logging.Event) error {
	record := jsonRecord{
		Type:      event.Type,
		Frame:     event.Frame,
		Time:      event.Time.UTC().Format(time.RFC3339Nano),
		Severity:  event.Severity.String(),
		Category:  event.Category,
		Actor:     formatEntity(event.Actor),
		Payload:   event.Payload,
		Extra:     event.Extra,
		TraceID:   event.TraceID,
		CommandID: event.CommandID,
	}
	for _, target := range event.Targets {
		record.Targets = append(record.Targets, formatEntity(target))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(record); err != nil {
		return err
	}
	if s.autoFlush {
		return s.writer.Flush()
	}
	return nil
}

// Close stops the flush loop and flushes buffers.
func (s *JSON) Close(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Flush()
}

func (s *JSON) periodicFlush(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
		}
	}
}
