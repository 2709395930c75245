// Package agent drives one agent run: model turns alternating with tool
// execution until the model answers without calling tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeer-ai/lybot/internal/concurrency"
	"github.com/codeer-ai/lybot/internal/config"
	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/logger"
	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/model/normalize"
	"github.com/codeer-ai/lybot/internal/stream"
	"github.com/codeer-ai/lybot/internal/tokens"
)

type Options struct {
	MaxTurns         int
	ToolTimeout      time.Duration
	MaxParallelTools int
	Strategy         normalize.Strategy
	// Counter, when set, estimates usage for runs the provider reports none for.
	Counter *tokens.Counter
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = config.DefaultAgentMaxTurns
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = 30 * time.Second
	}
	if o.MaxParallelTools <= 0 {
		o.MaxParallelTools = config.DefaultAgentMaxParallelTools
	}
	return o
}

// OptionsFromConfig builds driver options from the agent section.
func OptionsFromConfig(cfg config.AgentConfig) (Options, error) {
	toolTimeout, err := config.DurationOrDefault(cfg.ToolTimeout, config.DefaultAgentToolTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("invalid agent.tool_timeout: %w", err)
	}
	strategy, err := normalize.ParseStrategy(cfg.ChunkStrategy)
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		MaxTurns:         cfg.MaxTurns,
		ToolTimeout:      toolTimeout,
		MaxParallelTools: cfg.MaxParallelTools,
		Strategy:         strategy,
	}
	if cfg.EstimateUsage {
		counter, err := tokens.New(cfg.TokenEncoding)
		if err != nil {
			slog.Warn("Token estimator unavailable; usage will be reported as unknown", "error", err)
		} else {
			opts.Counter = counter
		}
	}
	return opts.withDefaults(), nil
}

type Driver struct {
	router     Router
	tools      ToolInvoker
	opts       Options
	normalizer *normalize.Normalizer
}

func NewDriver(router Router, tools ToolInvoker, opts Options) *Driver {
	opts = opts.withDefaults()
	return &Driver{
		router:     router,
		tools:      tools,
		opts:       opts,
		normalizer: normalize.New(opts.Strategy),
	}
}

// Run executes req to completion, passing every event to emit tagged with the
// phase that produced it. Any failure aborts the run with an ErrRunFailed
// error and skips the commit.
func (d *Driver) Run(ctx context.Context, req RunRequest, emit stream.Emitter) (*Result, error) {
	if emit == nil {
		emit = stream.Discard
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, lyErrors.Schema("No user message found")
	}

	attrs := logger.Attrs(ctx)
	slog.Info("Agent run started", append([]any{"model", req.Model, "history", len(req.History)}, attrs...)...)
	start := time.Now()

	newMessages := []contract.Message{{Role: contract.RoleUser, Content: req.Prompt}}
	var (
		output    string
		allCalls  []contract.ToolCall
		usage     contract.Usage
		usageSeen bool
		turns     int
	)

	for {
		if turns >= d.opts.MaxTurns {
			return nil, lyErrors.RunFailed(fmt.Errorf("exceeded max turns (%d)", d.opts.MaxTurns))
		}
		if err := ctx.Err(); err != nil {
			return nil, lyErrors.RunFailed(err)
		}
		turns++
		slog.Debug("Agent turn", append([]any{"turn", turns, "max", d.opts.MaxTurns}, attrs...)...)

		t, summary, err := d.modelRequest(ctx, req, newMessages, emit)
		if err != nil {
			slog.Error("Model request failed", append([]any{"turn", turns, "error", err}, attrs...)...)
			return nil, lyErrors.RunFailed(err)
		}
		if summary.UsageSeen {
			usage = usage.Add(summary.Usage)
			usageSeen = true
		}

		msg := t.message()
		newMessages = append(newMessages, msg)
		if len(msg.ToolCalls) == 0 {
			output = msg.Content
			break
		}
		allCalls = append(allCalls, msg.ToolCalls...)

		toolMessages, err := d.callTools(ctx, msg.ToolCalls, emit)
		if err != nil {
			slog.Error("Tool phase failed", append([]any{"turn", turns, "error", err}, attrs...)...)
			return nil, lyErrors.RunFailed(err)
		}
		newMessages = append(newMessages, toolMessages...)
	}

	if req.Commit != nil {
		if err := req.Commit(ctx, contract.CloneMessages(newMessages)); err != nil {
			return nil, lyErrors.RunFailed(lyErrors.Wrap(err, "commit session"))
		}
	}

	if !usageSeen {
		usage = contract.UnknownUsage()
		if d.opts.Counter != nil {
			usage = d.opts.Counter.Estimate(req.Instructions, append(contract.CloneMessages(req.History), newMessages[0]), newMessages[1:])
		}
	}

	if err := emit(stream.PhaseEvent{Phase: stream.PhaseEnd, Event: stream.UsageTotals(usage)}); err != nil {
		return nil, lyErrors.RunFailed(err)
	}

	slog.Info("Agent run finished", append([]any{
		"turns", turns,
		"tool_calls", len(allCalls),
		"total_tokens", usage.TotalTokens,
		"duration", time.Since(start),
	}, attrs...)...)

	return &Result{
		NewMessages: newMessages,
		Output:      output,
		ToolCalls:   allCalls,
		Usage:       usage,
		Turns:       turns,
	}, nil
}

func (d *Driver) modelRequest(ctx context.Context, req RunRequest, newMessages []contract.Message, emit stream.Emitter) (*turn, normalize.Summary, error) {
	messages := make([]contract.Message, 0, len(req.History)+len(newMessages))
	messages = append(messages, contract.CloneMessages(req.History)...)
	messages = append(messages, contract.CloneMessages(newMessages)...)

	creq := contract.Request{
		Model:        req.Model,
		Instructions: req.Instructions,
		Messages:     messages,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		Stop:         req.Stop,
	}
	if d.tools != nil {
		creq.Tools = d.tools.Definitions()
	}

	src, err := d.router.Route(ctx, req.Model, creq)
	if err != nil {
		return nil, normalize.Summary{}, err
	}
	defer src.Close()

	t := newTurn()
	summary, err := d.normalizer.Normalize(ctx, src, func(ev stream.Event) error {
		t.observe(ev)
		return emit(stream.PhaseEvent{Phase: stream.PhaseModelRequest, Event: ev})
	})
	if err != nil {
		return nil, summary, err
	}
	return t, summary, nil
}

// callTools announces every call, runs them concurrently and returns the tool
// messages in call order.
func (d *Driver) callTools(ctx context.Context, calls []contract.ToolCall, emit stream.Emitter) ([]contract.Message, error) {
	for _, call := range calls {
		if call.Name == "" {
			return nil, lyErrors.UnexpectedUpstream(fmt.Sprintf("tool call %s ended without a tool name", call.ID))
		}
	}
	for _, call := range calls {
		if err := emit(stream.PhaseEvent{
			Phase: stream.PhaseCallTools,
			Event: stream.ToolCallComplete(call.ID, call.Name, call.Arguments),
		}); err != nil {
			return nil, err
		}
	}

	results := make([]string, len(calls))
	var emitMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxParallelTools)
	for i, call := range calls {
		g.Go(func() error {
			out, err := d.invoke(gctx, call)
			if err != nil {
				return err
			}
			results[i] = out

			emitMu.Lock()
			defer emitMu.Unlock()
			return emit(stream.PhaseEvent{
				Phase: stream.PhaseCallTools,
				Event: stream.ToolResult(call.ID, call.Name, out),
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	messages := make([]contract.Message, 0, len(calls))
	for i, call := range calls {
		messages = append(messages, contract.Message{
			Role:       contract.RoleTool,
			Content:    results[i],
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}
	return messages, nil
}

type invocation struct {
	out string
	err error
}

// invoke runs one tool under the tool timeout. The tool's own error becomes
// the result text; a timeout or cancellation is returned as an error.
func (d *Driver) invoke(ctx context.Context, call contract.ToolCall) (string, error) {
	if d.tools == nil {
		return fmt.Sprintf("Tool %s failed: no tools are configured", call.Name), nil
	}

	tctx, cancel := context.WithTimeout(ctx, d.opts.ToolTimeout)
	defer cancel()

	done := make(chan invocation, 1)
	go func() {
		var out string
		err := concurrency.Guard(call.Name, func() error {
			var err error
			out, err = d.tools.Invoke(tctx, call.Name, call.Arguments)
			return err
		})
		done <- invocation{out: out, err: err}
	}()

	var res invocation
	select {
	case res = <-done:
	case <-tctx.Done():
		res = invocation{err: tctx.Err()}
	}

	if res.err == nil {
		return res.out, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("tool %s timed out after %s: %w", call.Name, d.opts.ToolTimeout, tctx.Err())
	}

	toolErr := lyErrors.ToolInvocation(call.Name, res.err)
	slog.Warn("Tool call failed; reporting to model", append([]any{"tool", call.Name, "call_id", call.ID, "error", toolErr}, logger.Attrs(ctx)...)...)
	return fmt.Sprintf("Tool %s failed: %v", call.Name, res.err), nil
}
