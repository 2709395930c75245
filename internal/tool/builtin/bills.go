package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	toolcore "github.com/codeer-ai/lybot/internal/tool"
)

func init() {
	toolcore.RegisterBuiltin("search_bills", func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return &SearchBillsTool{API: newLYClient(options)}, nil
	})
}

type searchBillsRequest struct {
	Term     int    `json:"term"`
	Session  int    `json:"session"`
	BillType string `json:"bill_type"`
	Proposer string `json:"proposer"`
	Keyword  string `json:"keyword"`
}

// SearchBillsTool searches bills with aggregations over source, type and status.
type SearchBillsTool struct {
	API *lyClient
}

func (t *SearchBillsTool) Name() string { return "search_bills" }

func (t *SearchBillsTool) Description() string {
	return "Search bills by term, session (會期), bill type (議案類別), proposer (提案人) or title keyword."
}

func (t *SearchBillsTool) ToolMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source:       "builtin",
		Capabilities: []string{"ly.bills", "http.get"},
		Endpoint:     "/bills",
	}
}

func (t *SearchBillsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"term": termProperty,
			"session": map[string]interface{}{
				"type":        "integer",
				"description": "Session number (會期)",
			},
			"bill_type": map[string]interface{}{
				"type":        "string",
				"description": "Bill type (議案類別), e.g. 法律案",
			},
			"proposer": map[string]interface{}{
				"type":        "string",
				"description": "Proposer name (提案人)",
			},
			"keyword": map[string]interface{}{
				"type":        "string",
				"description": "Phrase to search for in bill titles",
			},
		},
	}
}

func (t *SearchBillsTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args searchBillsRequest
	if err := toolcore.DecodeArgs(input, &args); err != nil {
		return nil, err
	}

	params := t.API.listParams()
	params.Set("屆", fmt.Sprint(t.API.term(args.Term)))
	params.Set("agg", "提案來源,議案類別,議案狀態")
	if args.Session > 0 {
		params.Set("會期", fmt.Sprint(args.Session))
	}
	if billType := strings.TrimSpace(args.BillType); billType != "" {
		params.Set("議案類別", billType)
	}
	if proposer := strings.TrimSpace(args.Proposer); proposer != "" {
		params.Set("提案人", proposer)
	}
	if keyword := strings.TrimSpace(args.Keyword); keyword != "" {
		params.Set("q", `"`+keyword+`"`)
	}

	return t.API.get(ctx, params, "bills")
}
