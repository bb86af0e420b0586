// internal/schema/validator.go
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Corphon/StoryEngine/internal/safeurl"
)

// ErrMalformedJSON is returned when the raw document is not syntactically valid JSON.
var ErrMalformedJSON = errors.New("malformed JSON")

// FieldError 一个被违反的字段
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries every violated field of a document.
type ValidationError struct {
	Kind   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Path+": "+f.Message)
	}
	return fmt.Sprintf("%s failed validation: %s", e.Kind, strings.Join(parts, "; "))
}

const unsafeURLMessage = "URL must be http(s) or a relative path; protocol-relative URLs are blocked"

var (
	engine     *validator.Validate
	engineOnce sync.Once
)

// dateLayouts ISO-8601 的日期与日期时间写法，带或不带时区
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
	"20060102T150405Z0700",
	"20060102T150405",
	"20060102",
}

// ParseDate parses the ISO-8601 forms accepted for publishedAt.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Engine returns the shared validator with the content tags registered.
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		v := validator.New()

		// report paths with JSON names, e.g. pages[0].background.src
		v.RegisterTagNameFunc(jsonName)

		_ = v.RegisterValidation("safeurl", SafeURL)
		_ = v.RegisterValidation("isodate", isoDate)

		engine = v
	})
	return engine
}

// SafeURL wraps safeurl.IsSafeAssetURL as a field validator, so every URL-bearing
// field shares one predicate through its `safeurl` tag.
func SafeURL(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	return safeurl.IsSafeAssetURL(field.String())
}

func isoDate(fl validator.FieldLevel) bool {
	_, ok := ParseDate(fl.Field().String())
	return ok
}

// decodeAndValidate decodes raw into target and collects every violation.
// The document is first checked field by field against the shape of target:
// a present key with the wrong JSON kind and a missing `schema:"required"` key
// are both reported, and neither is reported again by the tag rules.
func decodeAndValidate(kind string, raw []byte, target any) error {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("%s: %w", kind, ErrMalformedJSON)
	}

	var fields []FieldError
	cleaned := conform(generic, reflect.TypeOf(target), "", &fields)

	// cleaned only holds values of the kinds target expects
	data, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if cleaned != nil {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}

	fields = append(fields, filterShadowed(Validate(target), fields)...)
	if len(fields) > 0 {
		return &ValidationError{Kind: kind, Fields: fields}
	}
	return nil
}

// conform walks value alongside t. It returns value with every mismatched or
// unknown entry removed and appends one FieldError per mismatch or missing key.
func conform(value any, t reflect.Type, path string, fields *[]FieldError) any {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := value.(map[string]any)
		if !ok {
			*fields = append(*fields, mismatch(path, t, value))
			return nil
		}
		out := make(map[string]any, len(obj))
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := jsonName(f)
			if name == "" || !f.IsExported() {
				continue
			}
			childPath := joinPath(path, name)
			v, present := obj[name]
			if !present {
				if f.Tag.Get("schema") == "required" {
					*fields = append(*fields, FieldError{Path: childPath, Message: "is required"})
				}
				continue
			}
			if kept := conform(v, f.Type, childPath, fields); kept != nil {
				out[name] = kept
			}
		}
		return out

	case reflect.Slice, reflect.Array:
		arr, ok := value.([]any)
		if !ok {
			*fields = append(*fields, mismatch(path, t, value))
			return nil
		}
		// mismatched elements become null so later indexes keep their position
		out := make([]any, len(arr))
		for i, elem := range arr {
			out[i] = conform(elem, t.Elem(), fmt.Sprintf("%s[%d]", path, i), fields)
		}
		return out

	case reflect.String:
		if _, ok := value.(string); !ok {
			*fields = append(*fields, mismatch(path, t, value))
			return nil
		}
		return value

	case reflect.Bool:
		if _, ok := value.(bool); !ok {
			*fields = append(*fields, mismatch(path, t, value))
			return nil
		}
		return value

	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
		if _, ok := value.(float64); !ok {
			*fields = append(*fields, mismatch(path, t, value))
			return nil
		}
		return value

	default:
		return value
	}
}

func mismatch(path string, t reflect.Type, value any) FieldError {
	if path == "" {
		path = "(root)"
	}
	return FieldError{
		Path:    path,
		Message: fmt.Sprintf("expected %s, received %s", jsonTypeName(t), receivedName(value)),
	}
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// Validate runs the tag validation on an already decoded document.
func Validate(doc any) []FieldError {
	err := Engine().Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Path: "(root)", Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Path: fieldPath(fe.Namespace()), Message: message(fe)})
	}
	return fields
}

// filterShadowed drops tag reports at or below a path the shape check already
// reported, e.g. a bare string body is reported once as a type mismatch.
func filterShadowed(fields, shapeErrors []FieldError) []FieldError {
	if len(shapeErrors) == 0 {
		return fields
	}

	out := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		if !underAny(f.Path, shapeErrors) {
			out = append(out, f)
		}
	}
	return out
}

func underAny(path string, shapeErrors []FieldError) bool {
	for _, se := range shapeErrors {
		if se.Path == "(root)" || path == se.Path ||
			strings.HasPrefix(path, se.Path+".") || strings.HasPrefix(path, se.Path+"[") {
			return true
		}
	}
	return false
}

func fieldPath(namespace string) string {
	// drop the root struct name
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "safeurl":
		return unsafeURLMessage
	case "isodate":
		return "must be an ISO-8601 date"
	case "unique":
		return fmt.Sprintf("must not repeat %s values", strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func jsonTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map, reflect.Ptr:
		return "object"
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.String()
	}
}

func receivedName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
