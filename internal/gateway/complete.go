package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeer-ai/lybot/internal/agent"
	"github.com/codeer-ai/lybot/internal/api"
	"github.com/codeer-ai/lybot/internal/logger"
)

func streamCompletionID(created int64) string {
	return fmt.Sprintf("chatcmpl-%d", created)
}

func completionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// buildCompletion packages a finished run as a chat.completion object. The
// message carries every tool call of the run.
func buildCompletion(id string, created int64, model string, result *agent.Result) api.ChatCompletionResponse {
	var toolCalls []api.ToolCall
	for _, call := range result.ToolCalls {
		toolCalls = append(toolCalls, api.ToolCall{
			ID:   call.ID,
			Type: api.ToolTypeFunction,
			Function: api.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}

	reason := api.FinishReasonStop
	if len(toolCalls) > 0 {
		reason = api.FinishReasonToolCalls
	}

	usage := toWireUsage(result.Usage)
	return api.ChatCompletionResponse{
		ID:      id,
		Object:  api.ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []api.ResponseChoice{{
			Index: 0,
			Message: api.ResponseMessage{
				Role:      "assistant",
				Content:   result.Output,
				ToolCalls: toolCalls,
			},
			FinishReason: reason,
		}},
		Usage: &usage,
	}
}

func (s *Server) completeNonStreaming(ctx context.Context, w http.ResponseWriter, runReq agent.RunRequest, wireModel string, now time.Time) {
	start := time.Now()
	result, err := s.opts.Runner.Run(ctx, runReq, nil)
	if err != nil {
		slog.Error("Run failed", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		s.recordFailure(ctx, runReq.Model, false, err, time.Since(start))
		writeError(w, err)
		return
	}
	s.recordSuccess(ctx, runReq.Model, false, result, time.Since(start))

	writeJSON(w, http.StatusOK, buildCompletion(completionID(), now.Unix(), wireModel, result))
}
