// Package schema validates every payload before it can reach the approval
// repository. Two decode modes exist on purpose:
//
//   - strict, for the backend list endpoint: the backend is the source of
//     truth, so an unknown action kind fails the whole batch;
//   - lenient, for push payloads: they come from third parties and may carry
//     kinds newer than this client, which are shown as "other".
//
// Validation never panics and never returns partial results.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"approval-gateway/internal/core/domain"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("http_endpoint", validateHTTPEndpoint)
	return v
}

// validateHTTPEndpoint accepts absolute http/https URLs with a host.
func validateHTTPEndpoint(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // presence is enforced by "required"
	}
	return IsHTTPURL(raw)
}

// IsHTTPURL reports whether raw is an absolute http(s) URL.
func IsHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidationError identifies the offending item and field.
// Index is -1 when the payload was a single record.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "item %d: ", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field %q: ", e.Field)
	}
	b.WriteString(e.Reason)
	return b.String()
}

// Details exposes the error to API clients.
func (e *ValidationError) Details() interface{} {
	d := map[string]interface{}{"reason": e.Reason}
	if e.Index >= 0 {
		d["index"] = e.Index
	}
	if e.Field != "" {
		d["field"] = e.Field
	}
	return d
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ValidateAction checks a complete record, e.g. after stamping or when
// loading persisted history.
func ValidateAction(a domain.ApprovalAction) error {
	if err := validate.Struct(a); err != nil {
		return fromValidator(-1, err)
	}
	return nil
}

// decodeObject unmarshals one JSON object into dst and converts decoding
// failures into field-level validation errors.
func decodeObject(index int, raw []byte, dst interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return &ValidationError{Index: index, Reason: "expected a JSON object"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ValidationError{
				Index:  index,
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type.Kind(), typeErr.Value),
			}
		}
		return &ValidationError{Index: index, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

func fromValidator(index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Index: index, Reason: err.Error()}
	}
	fe := fieldErrs[0]
	return &ValidationError{Index: index, Field: fe.Field(), Reason: reasonFor(fe)}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be a positive timestamp"
	case "http_endpoint":
		return "must be an absolute http(s) URL"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

// maxExactMillis bounds float-form timestamps to the range a float64 holds
// without rounding.
const maxExactMillis = 1 << 53

// EpochMillis is a Unix timestamp in milliseconds. It accepts any JSON number
// with a whole value, so 1700000000000, 1.7e12 and 1700000000000.0 decode
// alike. Strings, fractions and out-of-range values are type errors.
type EpochMillis int64

func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = EpochMillis(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactMillis {
		value := "number " + s
		if strings.HasPrefix(s, `"`) {
			value = "string"
		}
		return &json.UnmarshalTypeError{Value: value, Type: reflect.TypeOf(int64(0))}
	}
	*m = EpochMillis(int64(f))
	return nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
