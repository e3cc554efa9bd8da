package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// ValidationErrorMap flattens binding validation errors into field -> failed
// tag, for error responses. Returns nil for non-validation errors.
func ValidationErrorMap(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	out := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		out[ve.Field()] = ve.Tag()
	}
	return out
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
