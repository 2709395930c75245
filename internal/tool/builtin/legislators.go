package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	toolcore "github.com/codeer-ai/lybot/internal/tool"
)

func init() {
	toolcore.RegisterBuiltin("get_legislators", func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return &LegislatorsTool{API: newLYClient(options)}, nil
	})
	toolcore.RegisterBuiltin("get_legislator_by_constituency", func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return &ConstituencyTool{API: newLYClient(options)}, nil
	})
	toolcore.RegisterBuiltin("get_legislator_details", func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return &LegislatorDetailsTool{API: newLYClient(options)}, nil
	})
	toolcore.RegisterBuiltin("get_party_seat_count", func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return &PartySeatCountTool{API: newLYClient(options)}, nil
	})
}

func legislatorMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source:       "builtin",
		Capabilities: []string{"ly.legislators", "http.get"},
		Endpoint:     "/legislators",
	}
}

var termProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Legislative term (屆). Defaults to the current term.",
}

type legislatorsRequest struct {
	Name  string `json:"name"`
	Party string `json:"party"`
	Term  int    `json:"term"`
}

// LegislatorsTool lists legislators, optionally filtered by name or party.
type LegislatorsTool struct {
	API *lyClient
}

func (t *LegislatorsTool) Name() string { return "get_legislators" }

func (t *LegislatorsTool) Description() string {
	return "List legislators of a term, optionally filtered by name (委員姓名) or party (黨籍)."
}

func (t *LegislatorsTool) ToolMetadata() toolcore.ToolMetadata { return legislatorMetadata() }

func (t *LegislatorsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Legislator name, e.g. 王美惠",
			},
			"party": map[string]interface{}{
				"type":        "string",
				"description": "Party name, e.g. 中國國民黨, 民主進步黨, 台灣民眾黨",
			},
			"term": termProperty,
		},
	}
}

func (t *LegislatorsTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args legislatorsRequest
	if err := toolcore.DecodeArgs(input, &args); err != nil {
		return nil, err
	}

	params := t.API.listParams()
	params.Set("agg", "委員姓名")
	params.Set("屆", fmt.Sprint(t.API.term(args.Term)))
	if name := strings.TrimSpace(args.Name); name != "" {
		params.Set("委員姓名", name)
	}
	if party := strings.TrimSpace(args.Party); party != "" {
		params.Set("黨籍", party)
	}

	return t.API.get(ctx, params, "legislators")
}

type constituencyRequest struct {
	Constituency string `json:"constituency"`
	Term         int    `json:"term"`
}

// ConstituencyTool finds the legislators elected in a district.
type ConstituencyTool struct {
	API *lyClient
}

func (t *ConstituencyTool) Name() string { return "get_legislator_by_constituency" }

func (t *ConstituencyTool) Description() string {
	return "Get legislators by electoral district (選區名稱), e.g. 台北市第七選區 or 臺北市北松山‧信義."
}

func (t *ConstituencyTool) ToolMetadata() toolcore.ToolMetadata { return legislatorMetadata() }

func (t *ConstituencyTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"constituency": map[string]interface{}{
				"type":        "string",
				"description": "Electoral district name",
			},
			"term": termProperty,
		},
		"required": []string{"constituency"},
	}
}

func (t *ConstituencyTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args constituencyRequest
	if err := toolcore.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	constituency := NormalizeConstituency(args.Constituency)
	if constituency == "" {
		return nil, fmt.Errorf("constituency is required")
	}

	params := t.API.listParams()
	params.Set("agg", "委員姓名")
	params.Set("屆", fmt.Sprint(t.API.term(args.Term)))
	params.Set("選區名稱", constituency)

	body, err := t.API.get(ctx, params, "legislators")
	if err != nil {
		return nil, err
	}
	if gjson.GetBytes(body, "total").Int() > 0 {
		return body, nil
	}

	// The index only matches exact names, so fall back to a substring match
	// over the whole term.
	slog.Debug("No exact constituency match, filtering all legislators", "constituency", constituency)
	params.Del("選區名稱")
	all, err := t.API.get(ctx, params, "legislators")
	if err != nil {
		return nil, err
	}

	matches := make([]string, 0)
	gjson.GetBytes(all, "legislators").ForEach(func(_, legislator gjson.Result) bool {
		district := legislator.Get("選區名稱").String()
		if strings.Contains(district, constituency) || strings.Contains(district, strings.TrimSpace(args.Constituency)) {
			matches = append(matches, legislator.Raw)
		}
		return true
	})

	body, err = sjson.SetRawBytes(body, "legislators", []byte("["+strings.Join(matches, ",")+"]"))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "total", len(matches))
}

type legislatorDetailsRequest struct {
	Name string `json:"name"`
	Term int    `json:"term"`
}

// LegislatorDetailsTool fetches one legislator's profile with links to
// related records.
type LegislatorDetailsTool struct {
	API *lyClient
}

func (t *LegislatorDetailsTool) Name() string { return "get_legislator_details" }

func (t *LegislatorDetailsTool) Description() string {
	return "Get detailed information about a legislator, with links to proposed bills, cosigned bills, meetings and interpellations."
}

func (t *LegislatorDetailsTool) ToolMetadata() toolcore.ToolMetadata { return legislatorMetadata() }

func (t *LegislatorDetailsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Legislator name",
			},
			"term": termProperty,
		},
		"required": []string{"name"},
	}
}

var legislatorRelations = []string{"propose_bills", "cosign_bills", "meets", "interpellations"}

func (t *LegislatorDetailsTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args legislatorDetailsRequest
	if err := toolcore.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	term := fmt.Sprint(t.API.term(args.Term))

	body, err := t.API.get(ctx, nil, "legislators", term, name)
	if err != nil {
		return nil, err
	}

	relations := make([]map[string]string, 0, len(legislatorRelations))
	for _, relation := range legislatorRelations {
		relations = append(relations, map[string]string{
			"url":  t.API.relationURL("legislators", term, name, relation),
			"name": relation,
		})
	}
	body, err = sjson.SetBytes(body, "relations", relations)
	if err != nil {
		return nil, err
	}
	return body, nil
}

type partySeatRequest struct {
	Party string `json:"party"`
	Term  int    `json:"term"`
}

// PartySeatCountTool counts a party's seats and groups them by district.
type PartySeatCountTool struct {
	API *lyClient
}

func (t *PartySeatCountTool) Name() string { return "get_party_seat_count" }

func (t *PartySeatCountTool) Description() string {
	return "Get the number of seats a party holds and how they are distributed across districts."
}

func (t *PartySeatCountTool) ToolMetadata() toolcore.ToolMetadata { return legislatorMetadata() }

func (t *PartySeatCountTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"party": map[string]interface{}{
				"type":        "string",
				"description": "Party name",
			},
			"term": termProperty,
		},
		"required": []string{"party"},
	}
}

func (t *PartySeatCountTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args partySeatRequest
	if err := toolcore.DecodeArgs(input, &args); err != nil {
		return nil, err
	}
	party := strings.TrimSpace(args.Party)
	if party == "" {
		return nil, fmt.Errorf("party is required")
	}

	params := t.API.listParams()
	params.Set("agg", "委員姓名")
	params.Set("屆", fmt.Sprint(t.API.term(args.Term)))
	params.Set("黨籍", party)

	body, err := t.API.get(ctx, params, "legislators")
	if err != nil {
		return nil, err
	}

	districts := map[string][]string{}
	gjson.GetBytes(body, "legislators").ForEach(func(_, legislator gjson.Result) bool {
		district := legislator.Get("選區名稱").String()
		if district == "" {
			district = "未知"
		}
		districts[district] = append(districts[district], legislator.Get("委員姓名").String())
		return true
	})

	return json.Marshal(map[string]interface{}{
		"黨籍":    party,
		"總席次":   gjson.GetBytes(body, "total").Int(),
		"各選區分布": districts,
		"選區數量":  len(districts),
	})
}
