package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lyErrors "github.com/codeer-ai/lybot/internal/errors"
)

type echoTool struct {
	name string
	err  error
	seen json.RawMessage
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echo " + t.name }
func (t *echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
	}
}

func (t *echoTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	t.seen = input
	if t.err != nil {
		return nil, t.err
	}
	return json.RawMessage(`{"echo":` + string(input) + `}`), nil
}

type strictTool struct{ echoTool }

func (t *strictTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		"required": []string{"name"},
	}
}

func (t *strictTool) ToolMetadata() ToolMetadata {
	return ToolMetadata{Source: "builtin", Capabilities: []string{"LY.Query", "ly.query", "http.get"}}
}

func TestRunnerInvoke(t *testing.T) {
	registry := NewRegistry()
	echo := &echoTool{name: "echo"}
	registry.Register(echo)
	runner := NewRunner(registry)

	out, err := runner.Invoke(context.Background(), " echo ", `{"text":"hi"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":{"text":"hi"}}`, out)
}

func TestRunnerInvokeEmptyArgumentsBecomeObject(t *testing.T) {
	registry := NewRegistry()
	echo := &echoTool{name: "echo"}
	registry.Register(echo)

	_, err := NewRunner(registry).Invoke(context.Background(), "echo", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(echo.seen))
}

func TestRunnerInvokeUnknownTool(t *testing.T) {
	_, err := NewRunner(NewRegistry()).Invoke(context.Background(), "missing", "{}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, lyErrors.ErrNotFound))
}

func TestRunnerInvokeValidationFailure(t *testing.T) {
	registry := NewRegistry()
	strict := &strictTool{echoTool{name: "strict"}}
	registry.Register(strict)

	_, err := NewRunner(registry).Invoke(context.Background(), "strict", `{}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lyErrors.ErrInvalidInput))
	assert.Nil(t, strict.seen)
}

func TestRunnerInvokeReturnsToolError(t *testing.T) {
	boom := errors.New("upstream 502")
	registry := NewRegistry()
	registry.Register(&echoTool{name: "flaky", err: boom})

	_, err := NewRunner(registry).Invoke(context.Background(), "flaky", `{}`)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryDescriptors(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&echoTool{name: "zeta"})
	registry.Register(&strictTool{echoTool{name: "alpha"}})
	runner := NewRunner(registry)

	descriptors := runner.GetDescriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "alpha", descriptors[0].Definition.Name)
	assert.Equal(t, "builtin", descriptors[0].Metadata.Source)
	assert.Equal(t, []string{"http.get", "ly.query"}, descriptors[0].Metadata.Capabilities)
	assert.Equal(t, "zeta", descriptors[1].Definition.Name)
	assert.Equal(t, "runtime", descriptors[1].Metadata.Source)

	defs := runner.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo zeta", defs[1].Description)
	assert.Equal(t, 2, registry.Len())
}

func TestRegistryRegisterEmptyNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry().Register(&echoTool{name: "  "})
	})
}

func TestNilRunnerDefinitions(t *testing.T) {
	var runner *Runner
	assert.Nil(t, runner.Definitions())
	assert.Nil(t, runner.GetDescriptors())
}
