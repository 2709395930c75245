// Package analytics records product events. Recording never fails the caller:
// delivery errors are logged and dropped.
package analytics

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/posthog/posthog-go"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/logger"
)

const (
	EventChatCompletion      = "chat_completion"
	EventChatCompletionError = "chat_completion_error"
)

// Sink accepts analytics events keyed by a distinct id (the session id).
type Sink interface {
	Capture(ctx context.Context, distinctID string, event string, props map[string]any)
	Close() error
}

// NullSink discards every event.
type NullSink struct{}

func (NullSink) Capture(context.Context, string, string, map[string]any) {}
func (NullSink) Close() error                                             { return nil }

type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// PostHogSink batches events to PostHog in the background.
type PostHogSink struct {
	client enqueuer
	once   sync.Once
}

// New returns a PostHog sink when analytics is enabled and a key is set,
// otherwise a NullSink.
func New(cfg config.AnalyticsConfig) (Sink, error) {
	if !cfg.Enabled {
		slog.Info("Analytics disabled by configuration")
		return NullSink{}, nil
	}
	if strings.TrimSpace(cfg.PostHogAPIKey) == "" {
		slog.Warn("POSTHOG_API_KEY not set; analytics disabled")
		return NullSink{}, nil
	}

	host := strings.TrimSpace(cfg.PostHogHost)
	if host == "" {
		host = config.DefaultAnalyticsPostHogHost
	}

	client, err := posthog.NewWithConfig(cfg.PostHogAPIKey, posthog.Config{
		Endpoint: host,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("PostHog analytics enabled", "host", host)
	return &PostHogSink{client: client}, nil
}

func (s *PostHogSink) Capture(ctx context.Context, distinctID string, event string, props map[string]any) {
	properties := posthog.NewProperties()
	for k, v := range props {
		properties.Set(k, v)
	}
	properties.Set("$insert_id", ulid.Make().String())
	if traceID := logger.GetTraceID(ctx); traceID != "" {
		properties.Set("trace_id", traceID)
	}

	err := s.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		slog.Warn("PostHog capture failed", append([]any{"event", event, "error", err}, logger.Attrs(ctx)...)...)
	}
}

// Close flushes queued events. Safe to call more than once.
func (s *PostHogSink) Close() error {
	var err error
	s.once.Do(func() {
		err = s.client.Close()
	})
	return err
}
