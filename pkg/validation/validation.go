// Package validation builds the request validator shared by the HTTP servers.
package validation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// New returns a validator that reports fields by their json names and knows
// the "ident" rule: ids that are safe to embed in a storage path.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
	return v
}

// IsIdent reports whether s satisfies the "ident" rule.
func IsIdent(s string) bool {
	return identPattern.MatchString(s)
}
