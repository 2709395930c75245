package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeArgs decodes model-produced JSON arguments into out. Models often
// send numbers as strings ("11") or strings as numbers, so scalar types are
// coerced. Field names follow the json struct tags of out.
func DecodeArgs(input json.RawMessage, out interface{}) error {
	raw := strings.TrimSpace(string(input))
	if raw == "" || raw == "null" {
		raw = "{}"
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(fields); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
