package main

import (
	"strings"
	"testing"

	"github.com/codeer-ai/lybot/internal/config"
)

func TestFormatModels(t *testing.T) {
	out := newTableFormatter().FormatModels(config.ModelsConfig{
		Default:  "lybot-gemini",
		Fallback: "lybot-openai",
		Registry: []config.ModelRegistry{
			{Name: "lybot-gemini", Provider: "gemini", Model: "gemini-2.5-pro", APIKey: "gm-key"},
			{Name: "lybot-openai", Provider: "openai", Model: "gpt-4.1"},
		},
	})

	for _, want := range []string{"lybot-gemini", "gemini-2.5-pro", "default", "lybot-openai", "fallback", "missing", "set"} {
		if !strings.Contains(out, want) {
			t.Errorf("models table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "gm-key") {
		t.Errorf("models table leaked an API key:\n%s", out)
	}

	if got := newTableFormatter().FormatModels(config.ModelsConfig{}); got != "No models configured" {
		t.Errorf("empty registry = %q", got)
	}
}

func TestEnabledTools(t *testing.T) {
	descriptors, err := enabledTools(config.ToolsConfig{})
	if err != nil {
		t.Fatalf("enabledTools: %v", err)
	}
	if len(descriptors) != 5 {
		t.Fatalf("expected 5 built-in tools, got %d", len(descriptors))
	}

	out := newTableFormatter().FormatTools(descriptors)
	for _, want := range []string{"get_legislators", "search_bills", "ly.bills"} {
		if !strings.Contains(out, want) {
			t.Errorf("tools table missing %q:\n%s", want, out)
		}
	}

	if _, err := enabledTools(config.ToolsConfig{Enabled: []string{"get_weather"}}); err == nil {
		t.Error("expected error for unknown tool")
	}
	if _, err := enabledTools(config.ToolsConfig{LYAPI: config.LYAPIConfig{Timeout: "soon"}}); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("查詢立法委員資料", 6); got != "查詢立..." {
		t.Errorf("truncateString = %q", got)
	}
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("truncateString = %q", got)
	}
}

func TestBuildDaemon(t *testing.T) {
	if _, err := buildDaemon(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	loaded := &config.Config{Server: config.ServerConfig{Port: 8000}}
	d, err := buildDaemon(loaded)
	if err != nil {
		t.Fatalf("buildDaemon: %v", err)
	}
	for _, name := range []string{"Models", "Tools", "Sessions", "Analytics", "HTTPServer"} {
		if d.Component(name) == nil {
			t.Errorf("component %s not registered", name)
		}
	}
}
