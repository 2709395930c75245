package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeer-ai/lybot/internal/agent"
	"github.com/codeer-ai/lybot/internal/analytics"
	"github.com/codeer-ai/lybot/internal/api"
	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/logger"
	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/session"
)

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*api.ChatCompletionRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, lyErrors.Schema(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, lyErrors.Schema(fmt.Sprintf("invalid request body: %v", err))
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChatRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Only the latest user message is used; prior turns come from the
	// server-side session.
	prompt, err := req.LastUserPrompt()
	if err != nil {
		writeError(w, err)
		return
	}

	now := s.opts.Now()
	sessionID := strings.TrimSpace(req.User)
	if sessionID == "" {
		sessionID = session.NewID(now)
	}
	ctx := logger.WithSessionID(r.Context(), sessionID)

	unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	defer unlock()

	wireModel := req.Model
	if wireModel == "" {
		wireModel = s.opts.DefaultModel
	}

	runReq := agent.RunRequest{
		Model:        s.resolveModel(ctx, req.Model),
		Instructions: s.opts.Instructions,
		History:      s.opts.Store.Get(sessionID),
		Prompt:       prompt,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		Stop:         req.Stop,
		Commit: func(_ context.Context, msgs []contract.Message) error {
			s.opts.Store.Append(sessionID, msgs)
			return nil
		},
	}
	if req.MaxTokens != nil {
		runReq.MaxTokens = *req.MaxTokens
	}

	if req.Stream {
		s.streamCompletion(ctx, w, req, runReq, wireModel, now)
		return
	}
	s.completeNonStreaming(ctx, w, runReq, wireModel, now)
}

func (s *Server) lockSession(ctx context.Context, sessionID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.SessionLockTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(lockCtx, sessionID)
	if err != nil {
		slog.Warn("Session busy", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return nil, lyErrors.Conflict(fmt.Sprintf("session %s is busy with another request", sessionID))
	}
	return unlock, nil
}

func (s *Server) streamCompletion(ctx context.Context, w http.ResponseWriter, req *api.ChatCompletionRequest, runReq agent.RunRequest, wireModel string, now time.Time) {
	created := now.Unix()
	translator := NewTranslator(newSSEWriter(w), TranslatorOptions{
		ID:              streamCompletionID(created),
		Created:         created,
		Model:           wireModel,
		EmitToolResults: s.opts.EmitToolResults,
		IncludeUsage:    req.IncludeUsage(),
		LogAttrs:        logger.Attrs(ctx),
	})

	writeSSEHeaders(w)
	if err := translator.Start(); err != nil {
		slog.Warn("Client went away before the run started", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return
	}

	start := time.Now()
	result, err := s.opts.Runner.Run(ctx, runReq, translator.Translate)
	if err != nil {
		slog.Error("Streaming run failed", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		s.recordFailure(ctx, runReq.Model, true, err, time.Since(start))
		if ctx.Err() != nil {
			return
		}
		if ferr := translator.Fail(err); ferr != nil {
			slog.Warn("Failed to write error chunk", append([]any{"error", ferr}, logger.Attrs(ctx)...)...)
		}
		return
	}
	s.recordSuccess(ctx, runReq.Model, true, result, time.Since(start))
}

func (s *Server) recordSuccess(ctx context.Context, model string, streaming bool, result *agent.Result, elapsed time.Duration) {
	s.opts.Analytics.Capture(ctx, logger.GetSessionID(ctx), analytics.EventChatCompletion, map[string]any{
		"model":             model,
		"stream":            streaming,
		"duration_ms":       elapsed.Milliseconds(),
		"turns":             result.Turns,
		"tool_calls":        len(result.ToolCalls),
		"prompt_tokens":     result.Usage.PromptTokens,
		"completion_tokens": result.Usage.CompletionTokens,
		"total_tokens":      result.Usage.TotalTokens,
		"output_chars":      len([]rune(result.Output)),
	})
}

func (s *Server) recordFailure(ctx context.Context, model string, streaming bool, err error, elapsed time.Duration) {
	s.opts.Analytics.Capture(ctx, logger.GetSessionID(ctx), analytics.EventChatCompletionError, map[string]any{
		"model":       model,
		"stream":      streaming,
		"duration_ms": elapsed.Milliseconds(),
		"error":       err.Error(),
		"error_type":  lyErrors.WireType(err),
		"canceled":    errors.Is(err, context.Canceled),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	created := s.opts.Now().Unix()
	data := make([]api.ModelInfo, 0, len(s.opts.Models))
	for _, id := range s.opts.Models {
		data = append(data, api.ModelInfo{
			ID:      id,
			Object:  api.ObjectModel,
			Created: created,
			OwnedBy: s.opts.OwnedBy,
		})
	}
	writeJSON(w, http.StatusOK, api.ModelList{Object: api.ObjectList, Data: data})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		n := s.opts.Store.ClearAll()
		slog.Info("All sessions cleared", append([]any{"count", n}, logger.Attrs(r.Context())...)...)
		writeJSON(w, http.StatusOK, api.MessageResponse{Message: "All sessions cleared"})
		return
	}

	if s.opts.Store.Clear(sessionID) {
		writeJSON(w, http.StatusOK, api.MessageResponse{Message: fmt.Sprintf("Session %s cleared", sessionID)})
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: fmt.Sprintf("Session %s not found", sessionID)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    "healthy",
		Timestamp: s.opts.Now().Format(time.RFC3339),
	}
	if s.opts.Health != nil {
		resp.Components = s.opts.Health(r.Context())
		for _, status := range resp.Components {
			if status != "healthy" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ServiceInfo{
		Name:        ServiceName,
		Description: ServiceDescription,
		Version:     s.opts.Version,
		Endpoints: map[string]string{
			"/v1/chat/completions": "Chat completions (OpenAI-compatible)",
			"/v1/models":           "List available models",
			"/v1/sessions/clear":   "Clear one session (?session_id=) or all sessions",
			"/health":              "Health check",
		},
	})
}
