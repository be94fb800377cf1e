package guildconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

func encodeDocument(doc map[string]any) ([]byte, error) {
	return sonic.Marshal(doc)
}

func decodeDocument(raw []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode guild config: %w", err)
	}
	return doc, nil
}

func toDocument(value any) (map[string]any, error) {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

// decodeStrict decodes value into target, rejecting unknown keys and values
// of the wrong JSON type. The offending field is reported as a FieldError
// prefixed with sectionName.
func decodeStrict(sectionName string, value any, target any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return shapeError(sectionName, err)
	}
	return nil
}

// rejectNulls reports every null in partial as a field error. A null would
// otherwise decode as the zero value and be stored as written.
func rejectNulls(sectionName string, partial map[string]any) error {
	var errs []FieldError
	collectNulls(partial, "", &errs)
	if len(errs) == 0 {
		return nil
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	for i := range errs {
		errs[i].Field = joinField(sectionName, errs[i].Field)
	}
	return &ValidationError{Errors: errs}
}

func collectNulls(value any, path string, errs *[]FieldError) {
	switch v := value.(type) {
	case nil:
		*errs = append(*errs, FieldError{Field: path, Message: "must not be null"})
	case map[string]any:
		for key, item := range v {
			next := key
			if path != "" {
				next = path + "." + key
			}
			collectNulls(item, next, errs)
		}
	case []any:
		for i, item := range v {
			collectNulls(item, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	}
}

func shapeError(sectionName string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{Errors: []FieldError{{
			Field:   joinField(sectionName, typeErr.Field),
			Message: "must be of type " + describeKind(typeErr.Type.Kind().String()),
		}}}
	}
	const unknownPrefix = "json: unknown field "
	if msg := err.Error(); strings.HasPrefix(msg, unknownPrefix) {
		field := strings.Trim(strings.TrimPrefix(msg, unknownPrefix), `"`)
		return &ValidationError{Errors: []FieldError{{
			Field:   joinField(sectionName, field),
			Message: "is not a known setting",
		}}}
	}
	return &ValidationError{Errors: []FieldError{{Field: sectionName, Message: "is malformed"}}}
}

func describeKind(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return "integer"
	case "float32", "float64":
		return "number"
	case "bool":
		return "boolean"
	case "slice", "array":
		return "array"
	case "struct", "map":
		return "object"
	default:
		return kind
	}
}

func joinField(sectionName, field string) string {
	if sectionName == SectionGeneral || sectionName == "" {
		return field
	}
	if field == "" {
		return sectionName
	}
	return sectionName + "." + field
}
