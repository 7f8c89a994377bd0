package validation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "physlab/pkg/errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar date format accepted by query filters.
const DateLayout = "2006-01-02"

var registerOnce sync.Once

// RegisterJSONTagNames makes gin's validator report fields by their json name.
func RegisterJSONTagNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	})
}

// FromBindingError turns a gin binding failure into a ValidationError naming the first offending field.
func FromBindingError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := jsonFieldName(fe)
		return apperrors.NewValidationError(field, describe(field, fe))
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return apperrors.NewValidationError(typeErr.Field, fmt.Sprintf("%s has the wrong type", typeErr.Field))
	}

	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) || stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.NewInvalidInputError("request body must be valid JSON")
	}

	return apperrors.NewInvalidInputError("invalid request format")
}

func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s is required", fieldName))
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be at least %d characters", fieldName, min))
	}
	if length > max {
		return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s is too long (max %d characters)", fieldName, max))
	}
	return nil
}

// ValidatePercentage validates a progress percentage.
func ValidatePercentage(p int, fieldName string) error {
	if p < 0 || p > 100 {
		return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be between 0 and 100", fieldName))
	}
	return nil
}

// ValidateOneOf validates that value is one of allowed (empty value is accepted).
func ValidateOneOf(value string, allowed []string, fieldName string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be one of: %s", fieldName, strings.Join(allowed, ", ")))
}

// ParseDate parses a YYYY-MM-DD value in UTC.
func ParseDate(value, fieldName string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fieldName))
	}
	return t, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts RFC 3339 or a local datetime without zone, read as UTC.
func ParseTimestamp(value, fieldName string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be a timestamp such as 2006-01-02T15:04", fieldName))
}

// ValidateURL validates URL format (empty value is accepted).
func ValidateURL(urlStr, fieldName string) error {
	if urlStr == "" {
		return nil
	}
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperrors.NewValidationError(fieldName, fmt.Sprintf("%s must be an http(s) URL", fieldName))
	}
	return nil
}
