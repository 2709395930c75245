package tool

import (
	"slices"
	"strings"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

// ToolMetadata describes where a tool's data comes from. It is listed by
// `lybot tools` and never sent to the model.
type ToolMetadata struct {
	Source       string
	Capabilities []string
	// Endpoint is the upstream API path the tool reads from, if any.
	Endpoint string
}

type MetadataProvider interface {
	ToolMetadata() ToolMetadata
}

type ToolDescriptor struct {
	Definition contract.ToolDef
	Metadata   ToolMetadata
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeToolMetadata lowercases the source and capabilities, drops blank
// and duplicate capabilities and sorts them. Tools without a source are
// "runtime".
func normalizeToolMetadata(meta ToolMetadata) ToolMetadata {
	source := canonical(meta.Source)
	if source == "" {
		source = "runtime"
	}

	capabilities := make([]string, 0, len(meta.Capabilities))
	for _, c := range meta.Capabilities {
		if c = canonical(c); c != "" {
			capabilities = append(capabilities, c)
		}
	}
	slices.Sort(capabilities)

	return ToolMetadata{
		Source:       source,
		Capabilities: slices.Compact(capabilities),
		Endpoint:     strings.TrimSpace(meta.Endpoint),
	}
}
