package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValidateInput checks the JSON input against the tool's parameter schema.
// It covers the subset of JSON Schema tools declare here: required fields,
// primitive types, enums, arrays and nested objects. All violations are
// reported together.
func ValidateInput(schema map[string]interface{}, input json.RawMessage) error {
	var inputMap map[string]interface{}
	if err := json.Unmarshal(input, &inputMap); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if inputMap == nil {
		return fmt.Errorf("input must be a JSON object")
	}

	return errors.Join(validateObject("", schema, inputMap)...)
}

func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		out := make([]string, 0, len(required))
		for _, field := range required {
			if name, ok := field.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

func validateObject(prefix string, schema map[string]interface{}, input map[string]interface{}) []error {
	var errs []error

	for _, field := range requiredFields(schema) {
		if v, exists := input[field]; !exists || v == nil {
			errs = append(errs, fmt.Errorf("missing required field: %s", prefix+field))
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return errs
	}

	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Unknown fields are tolerated; models often add harmless extras.
	for _, key := range keys {
		propSchema, ok := properties[key].(map[string]interface{})
		if !ok || input[key] == nil {
			continue
		}
		errs = append(errs, validateValue(prefix+key, propSchema, input[key])...)
	}

	return errs
}

func validateValue(field string, schema map[string]interface{}, value interface{}) []error {
	if err := validateEnum(field, schema, value); err != nil {
		return []error{err}
	}

	expectedType, ok := schema["type"].(string)
	if !ok {
		return nil
	}

	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return []error{fmt.Errorf("field '%s' expected string, got %T", field, value)}
		}
	case "number":
		if _, ok := numericValue(value); !ok {
			return []error{fmt.Errorf("field '%s' expected number, got %T", field, value)}
		}
	case "integer":
		n, ok := numericValue(value)
		if !ok || n != math.Trunc(n) {
			return []error{fmt.Errorf("field '%s' expected integer, got %v", field, value)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []error{fmt.Errorf("field '%s' expected boolean, got %T", field, value)}
		}
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return []error{fmt.Errorf("field '%s' expected array, got %T", field, value)}
		}
		itemsSchema, ok := schema["items"].(map[string]interface{})
		if !ok {
			return nil
		}
		var errs []error
		for i, item := range arr {
			errs = append(errs, validateValue(fmt.Sprintf("%s[%d]", field, i), itemsSchema, item)...)
		}
		return errs
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return []error{fmt.Errorf("field '%s' expected object, got %T", field, value)}
		}
		return validateObject(field+".", schema, obj)
	}

	return nil
}

// numericValue accepts JSON numbers and numeric strings; DecodeArgs coerces
// the latter.
func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	}
	return 0, false
}

func validateEnum(field string, schema map[string]interface{}, value interface{}) error {
	var allowed []interface{}
	switch enum := schema["enum"].(type) {
	case []interface{}:
		allowed = enum
	case []string:
		for _, v := range enum {
			allowed = append(allowed, v)
		}
	default:
		return nil
	}

	for _, v := range allowed {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("field '%s' must be one of %v", field, allowed)
}
