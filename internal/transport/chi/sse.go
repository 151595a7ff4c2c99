package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

const sseDone = "data: [DONE]\n\n"

// sseSink writes chat events as server-sent events. It implements chat.Sink.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) *sseSink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) Results(rs []result.Result) error {
	return s.event(resultsEvent{Type: "searchResults", Results: resultsToDTO(rs)})
}

func (s *sseSink) Delta(content string) error {
	return s.event(contentEvent{Type: "content", Content: content})
}

func (s *sseSink) fail(msg string) error {
	return s.event(errorEvent{Type: "error", Error: msg})
}

func (s *sseSink) done() error {
	if _, err := fmt.Fprint(s.w, sseDone); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	return s.flush()
}

func (s *sseSink) event(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return s.flush()
}

func (s *sseSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
