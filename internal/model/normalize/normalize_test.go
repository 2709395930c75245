package normalize

import (
	"context"
	"errors"
	"testing"

	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/model/modeltest"
	"github.com/codeer-ai/lybot/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, strategy Strategy, chunks ...*contract.Chunk) ([]stream.Event, Summary, error) {
	t.Helper()
	n := New(strategy)
	n.nonce = func() string { return "abc" }

	var events []stream.Event
	summary, err := n.Normalize(context.Background(), modeltest.NewSliceStream(chunks...), func(ev stream.Event) error {
		require.NoError(t, ev.Validate())
		events = append(events, ev)
		return nil
	})
	return events, summary, err
}

func TestNormalizeTextWithEmptyTerminal(t *testing.T) {
	events, summary, err := run(t, Tolerant,
		modeltest.Text("Hi"),
		modeltest.Text(" there"),
		modeltest.Finish("stop"),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.TextDelta("Hi"),
		stream.TextDelta(" there"),
		stream.TextDelta(""),
	}, events)
	assert.Equal(t, "stop", summary.FinishReason)
}

func TestNormalizeZeroUsableChunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []*contract.Chunk
	}{
		{name: "empty stream"},
		{name: "only empty chunks", chunks: []*contract.Chunk{modeltest.Empty(), modeltest.Empty()}},
		{name: "only terminal", chunks: []*contract.Chunk{modeltest.Finish("stop")}},
		{name: "only thinking", chunks: []*contract.Chunk{modeltest.Thinking("hmm")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, Tolerant, tt.chunks...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, lyErrors.ErrUnexpectedUpstream))
		})
	}
}

func TestNormalizeAccumulatesUsageOnSkippedChunks(t *testing.T) {
	skipped := &contract.Chunk{Usage: &contract.Usage{PromptTokens: 5, CompletionTokens: 0, TotalTokens: 5}}
	nilDelta := &contract.Chunk{
		Choices: []contract.ChunkChoice{{Delta: nil}},
		Usage:   &contract.Usage{CompletionTokens: 2},
	}

	events, summary, err := run(t, Tolerant,
		skipped,
		modeltest.Text("ok"),
		nilDelta,
		modeltest.UsageOnly(1, 1),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{stream.TextDelta("ok")}, events)
	assert.True(t, summary.UsageSeen)
	assert.Equal(t, contract.Usage{PromptTokens: 6, CompletionTokens: 3, TotalTokens: 9}, summary.Usage)
	assert.Equal(t, 1, summary.Skipped)
}

func TestNormalizeUsageOnlyStreamIsUsable(t *testing.T) {
	events, summary, err := run(t, Strict, modeltest.UsageOnly(3, 0))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 3, summary.Usage.PromptTokens)
}

func TestNormalizeSyntheticToolCallIDs(t *testing.T) {
	events, _, err := run(t, Tolerant,
		modeltest.ToolFragment(0, "", "get_legislators", `{"party":`),
		modeltest.ToolFragment(0, "", "", `"民主進步黨"}`),
		modeltest.ToolFragment(1, "", "get_party_seat_count", `{}`),
		modeltest.Finish("tool_calls"),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.ToolCallStart("call_abc_0", "get_legislators"),
		stream.ToolCallDelta("call_abc_0", `{"party":`),
		stream.ToolCallDelta("call_abc_0", `"民主進步黨"}`),
		stream.ToolCallStart("call_abc_1", "get_party_seat_count"),
		stream.ToolCallDelta("call_abc_1", `{}`),
		stream.TextDelta(""),
	}, events)
}

func TestNormalizeVendorIDReopensIndex(t *testing.T) {
	events, _, err := run(t, Tolerant,
		modeltest.ToolFragment(0, "t1", "get_legislators", `{}`),
		modeltest.ToolFragment(0, "", "", ``),
		modeltest.ToolFragment(0, "t2", "search_bills", `{"keyword":"能源"}`),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.ToolCallStart("t1", "get_legislators"),
		stream.ToolCallDelta("t1", `{}`),
		stream.ToolCallStart("t2", "search_bills"),
		stream.ToolCallDelta("t2", `{"keyword":"能源"}`),
	}, events)
}

func TestNormalizeDropsResentToolCall(t *testing.T) {
	tests := []struct {
		name   string
		chunks []*contract.Chunk
	}{
		{
			name: "same id on a new index",
			chunks: []*contract.Chunk{
				modeltest.ToolFragment(0, "t1", "get_legislators", `{"party":"x"}`),
				modeltest.ToolFragment(1, "t1", "get_legislators", `{"party":"x"}`),
			},
		},
		{
			name: "same id and name on the same index",
			chunks: []*contract.Chunk{
				modeltest.ToolFragment(0, "t1", "get_legislators", `{"party":`),
				modeltest.ToolFragment(0, "", "", `"x"}`),
				modeltest.ToolFragment(0, "t1", "get_legislators", `{"party":`),
				modeltest.ToolFragment(0, "", "", `"x"}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, _, err := run(t, Tolerant, tt.chunks...)
			require.NoError(t, err)

			var starts int
			var args string
			for _, ev := range events {
				switch ev.Kind {
				case stream.KindToolCallStart:
					starts++
				case stream.KindToolCallDelta:
					assert.Equal(t, "t1", ev.ToolCallID)
					args += ev.Text
				}
			}
			assert.Equal(t, 1, starts)
			assert.Equal(t, `{"party":"x"}`, args)
		})
	}
}

func TestNormalizeResentCallDoesNotSwallowNextCall(t *testing.T) {
	events, _, err := run(t, Tolerant,
		modeltest.ToolFragment(0, "t1", "get_legislators", `{}`),
		modeltest.ToolFragment(1, "t1", "get_legislators", `{}`),
		modeltest.ToolFragment(1, "t2", "search_bills", `{"keyword":`),
		modeltest.ToolFragment(1, "", "", `"能源"}`),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.ToolCallStart("t1", "get_legislators"),
		stream.ToolCallDelta("t1", `{}`),
		stream.ToolCallStart("t2", "search_bills"),
		stream.ToolCallDelta("t2", `{"keyword":`),
		stream.ToolCallDelta("t2", `"能源"}`),
	}, events)
}

func TestNormalizeLateToolName(t *testing.T) {
	events, _, err := run(t, Tolerant,
		modeltest.ToolFragment(0, "t1", "", ""),
		modeltest.ToolFragment(0, "", "get_legislators", `{"party":"x"}`),
		modeltest.ToolFragment(0, "", "get_legislators", ``),
	)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.ToolCallStart("t1", ""),
		stream.ToolCallStart("t1", "get_legislators"),
		stream.ToolCallDelta("t1", `{"party":"x"}`),
	}, events)
}

func TestNormalizeKeysCallsByChoice(t *testing.T) {
	twoChoices := &contract.Chunk{Choices: []contract.ChunkChoice{
		{Index: 0, Delta: &contract.ChunkDelta{ToolCalls: []contract.ToolCallFragment{{Index: 0, Name: "get_legislators", Arguments: `{}`}}}},
		{Index: 1, Delta: &contract.ChunkDelta{ToolCalls: []contract.ToolCallFragment{{Index: 0, Name: "search_bills", Arguments: `{}`}}}},
	}}

	events, _, err := run(t, Tolerant, twoChoices)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.ToolCallStart("call_abc_0", "get_legislators"),
		stream.ToolCallDelta("call_abc_0", `{}`),
		stream.ToolCallStart("call_abc_1_0", "search_bills"),
		stream.ToolCallDelta("call_abc_1_0", `{}`),
	}, events)
}

func TestNormalizeStrictRejectsMalformedChunks(t *testing.T) {
	_, _, err := run(t, Strict, modeltest.Text("a"), modeltest.Empty())
	assert.True(t, errors.Is(err, lyErrors.ErrUnexpectedUpstream))

	_, _, err = run(t, Strict, modeltest.Text("a"), &contract.Chunk{Choices: []contract.ChunkChoice{{}}})
	assert.True(t, errors.Is(err, lyErrors.ErrUnexpectedUpstream))

	events, _, err := run(t, Strict, modeltest.Text("a"), modeltest.UsageOnly(1, 1), modeltest.Finish("stop"))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNormalizeUpstreamErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	src := modeltest.NewSliceStream(modeltest.Text("partial"))
	src.Err = boom

	n := New(Tolerant)
	_, err := n.Normalize(context.Background(), src, func(stream.Event) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestNormalizeStopsWhenEmitFails(t *testing.T) {
	stop := errors.New("client gone")
	n := New(Tolerant)
	_, err := n.Normalize(context.Background(), modeltest.NewSliceStream(modeltest.Text("a"), modeltest.Text("b")), func(stream.Event) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestNormalizeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := New(Tolerant)
	_, err := n.Normalize(ctx, modeltest.NewSliceStream(modeltest.Text("a")), func(stream.Event) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, Strict, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Tolerant, s)

	_, err = ParseStrategy("lenient")
	assert.True(t, errors.Is(err, lyErrors.ErrInvalidInput))
}
