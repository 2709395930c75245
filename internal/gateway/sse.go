package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const sseDone = "[DONE]"

// chunkSink receives serialized wire chunks in order.
type chunkSink interface {
	WriteChunk(v any) error
	WriteDone() error
}

// sseWriter frames each payload as one server-sent event and flushes it.
type sseWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) WriteChunk(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	return s.writeEvent(data)
}

func (s *sseWriter) WriteDone() error {
	return s.writeEvent([]byte(sseDone))
}

func (s *sseWriter) writeEvent(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && err != http.ErrNotSupported {
		return err
	}
	return nil
}
