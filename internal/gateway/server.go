// Package gateway serves the OpenAI-compatible HTTP surface on top of the
// agent driver.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/codeer-ai/lybot/internal/agent"
	"github.com/codeer-ai/lybot/internal/analytics"
	"github.com/codeer-ai/lybot/internal/api"
	"github.com/codeer-ai/lybot/internal/concurrency"
	"github.com/codeer-ai/lybot/internal/config"
	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/logger"
	"github.com/codeer-ai/lybot/internal/session"
	"github.com/codeer-ai/lybot/internal/stream"
)

const (
	ServiceName        = "LyBot API"
	ServiceDescription = "OpenAI-compatible API for Taiwan Legislative Yuan research"
)

// Runner executes one agent run; *agent.Driver implements it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest, emit stream.Emitter) (*agent.Result, error)
}

type Options struct {
	Runner    Runner
	Store     session.Store
	Analytics analytics.Sink

	// Models are the exposed model ids; DefaultModel serves requests naming
	// any other id.
	Models       []string
	DefaultModel string
	OwnedBy      string
	Instructions string

	EmitToolResults    bool
	SessionLockTimeout time.Duration
	MaxBodyBytes       int64
	CORSOrigins        []string
	Version            string

	// Health reports component status for GET /health; nil reports none.
	Health func(ctx context.Context) map[string]string
	Now    func() time.Time
}

type Server struct {
	opts  Options
	locks *concurrency.KeyedLock
}

func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	if opts.Analytics == nil {
		opts.Analytics = analytics.NullSink{}
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = config.DefaultModelDefault
	}
	if len(opts.Models) == 0 {
		opts.Models = []string{opts.DefaultModel}
	}
	if opts.OwnedBy == "" {
		opts.OwnedBy = config.DefaultModelOwnedBy
	}
	if opts.SessionLockTimeout <= 0 {
		opts.SessionLockTimeout = 2 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = config.DefaultServerMaxBodyBytes
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Server{
		opts:  opts,
		locks: concurrency.NewKeyedLock(),
	}
}

// Handler returns the routed handler wrapped in request id, access log and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/sessions/clear", s.handleClearSessions)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return withRequestID(withAccessLog(withCORS(s.opts.CORSOrigins, mux)))
}

// resolveModel maps a requested model id to one the router serves.
func (s *Server) resolveModel(ctx context.Context, requested string) string {
	if requested != "" && slices.Contains(s.opts.Models, requested) {
		return requested
	}
	if requested != "" {
		slog.Warn("Unknown model requested; using default",
			append([]any{"requested", requested, "default", s.opts.DefaultModel}, logger.Attrs(ctx)...)...)
	}
	return s.opts.DefaultModel
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, lyErrors.HTTPStatus(err), api.ErrorResponse{Error: api.ErrorBody{
		Message: err.Error(),
		Type:    lyErrors.WireType(err),
	}})
}
