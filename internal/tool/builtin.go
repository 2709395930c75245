package tool

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// BuiltinOptions carries runtime dependencies needed by built-in tool factories.
type BuiltinOptions struct {
	LYAPIBaseURL string
	LYAPITimeout time.Duration
	Term         int
	PageLimit    int
	HTTPClient   *http.Client
}

const (
	DefaultBuiltinLYAPIBaseURL = "https://ly.govapi.tw/v2"
	DefaultBuiltinLYAPITimeout = 30 * time.Second
	DefaultBuiltinTerm         = 11
	DefaultBuiltinPageLimit    = 200
)

// WithDefaults fills unset options.
func (o BuiltinOptions) WithDefaults() BuiltinOptions {
	if strings.TrimSpace(o.LYAPIBaseURL) == "" {
		o.LYAPIBaseURL = DefaultBuiltinLYAPIBaseURL
	}
	o.LYAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(o.LYAPIBaseURL), "/")
	if o.LYAPITimeout <= 0 {
		o.LYAPITimeout = DefaultBuiltinLYAPITimeout
	}
	if o.Term <= 0 {
		o.Term = DefaultBuiltinTerm
	}
	if o.PageLimit <= 0 {
		o.PageLimit = DefaultBuiltinPageLimit
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.LYAPITimeout}
	}
	return o
}

type BuiltinFactory func(options BuiltinOptions) (Tool, error)

var builtinCatalog = struct {
	mu        sync.RWMutex
	factories map[string]BuiltinFactory
}{
	factories: map[string]BuiltinFactory{},
}

// RegisterBuiltin registers a built-in tool factory under a tool name.
// Intended to be called in init() from built-in tool files.
func RegisterBuiltin(name string, factory BuiltinFactory) {
	normalized := NormalizeToolName(name)
	if normalized == "" {
		panic("tool: built-in name cannot be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("tool: built-in factory cannot be nil (%s)", normalized))
	}

	builtinCatalog.mu.Lock()
	defer builtinCatalog.mu.Unlock()

	if _, exists := builtinCatalog.factories[normalized]; exists {
		panic(fmt.Sprintf("tool: built-in already registered: %s", normalized))
	}
	builtinCatalog.factories[normalized] = factory
}

// BuiltinNames returns all registered built-in names in deterministic order.
func BuiltinNames() []string {
	builtinCatalog.mu.RLock()
	defer builtinCatalog.mu.RUnlock()

	names := make([]string, 0, len(builtinCatalog.factories))
	for name := range builtinCatalog.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltinName reports whether a tool name maps to a registered built-in tool.
func IsBuiltinName(name string) bool {
	normalized := NormalizeToolName(name)
	if normalized == "" {
		return false
	}

	builtinCatalog.mu.RLock()
	defer builtinCatalog.mu.RUnlock()
	_, ok := builtinCatalog.factories[normalized]
	return ok
}

// InstantiateBuiltins constructs built-in tools using their registered factories.
// An empty enabled list selects every registered built-in.
func InstantiateBuiltins(options BuiltinOptions, enabled []string) ([]Tool, error) {
	options = options.WithDefaults()

	names := BuiltinNames()
	if len(enabled) > 0 {
		selected := make([]string, 0, len(enabled))
		seen := make(map[string]struct{}, len(enabled))
		for _, name := range enabled {
			normalized := NormalizeToolName(name)
			if normalized == "" {
				continue
			}
			if !IsBuiltinName(normalized) {
				return nil, fmt.Errorf("unknown built-in tool %q", name)
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			selected = append(selected, normalized)
		}
		sort.Strings(selected)
		names = selected
	}

	builtinCatalog.mu.RLock()
	factories := make(map[string]BuiltinFactory, len(builtinCatalog.factories))
	for name, factory := range builtinCatalog.factories {
		factories[name] = factory
	}
	builtinCatalog.mu.RUnlock()

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		toolFactory, ok := factories[name]
		if !ok {
			continue
		}

		t, err := toolFactory(options)
		if err != nil {
			return nil, fmt.Errorf("instantiate built-in %q: %w", name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}
