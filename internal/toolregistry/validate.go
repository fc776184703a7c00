package toolregistry

import (
	"fmt"
	"reflect"

	otterrors "otto/internal/errors"
	"otto/internal/ports"
)

// ValidateParams checks an argument map against a descriptor's declared
// schema. Validation is total: unknown params, missing required params, type
// mismatches, and out-of-enum values are all rejected before the tool runs.
func ValidateParams(desc ports.ToolDescriptor, params map[string]any) error {
	for name := range params {
		if _, declared := desc.Params[name]; !declared {
			return otterrors.NewValidation(name, "unknown parameter for tool %s", desc.Name)
		}
	}

	for name, schema := range desc.Params {
		value, present := params[name]
		if !present {
			if schema.Required {
				return otterrors.NewValidation(name, "missing required parameter for tool %s", desc.Name)
			}
			continue
		}
		if err := checkType(name, schema.Type, value); err != nil {
			return err
		}
		if len(schema.Enum) > 0 && !enumAllows(schema.Enum, value) {
			return otterrors.NewValidation(name, "value %v not in allowed set", value)
		}
	}
	return nil
}

func checkType(name, declared string, value any) error {
	if value == nil {
		return otterrors.NewValidation(name, "parameter is null")
	}
	ok := false
	switch declared {
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "number":
		ok = isNumeric(value)
	case "integer":
		ok = isInteger(value)
	case "array":
		ok = reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		ok = reflect.TypeOf(value).Kind() == reflect.Map
	case "":
		// Untyped params accept anything.
		ok = true
	default:
		return otterrors.NewValidation(name, "descriptor declares unsupported type %q", declared)
	}
	if !ok {
		return otterrors.NewValidation(name, "expected %s, got %T", declared, value)
	}
	return nil
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// isInteger accepts integer-valued floats because JSON decodes all numbers as
// float64.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case float32:
		return v == float32(int64(v))
	default:
		return false
	}
}

func enumAllows(enum []any, value any) bool {
	for _, allowed := range enum {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
