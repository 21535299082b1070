package router

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"gopkg.in/go-playground/validator.v9"
)

// NewValidator returns the echo validator with the client name rule registered
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clientname", validClientName)
	return &Validator{validator: v}
}

// Validator struct
type Validator struct {
	validator *validator.Validate
}

// Validate reports the first failing field by its JSON name
func (v *Validator) Validate(i interface{}) error {
	err := v.validator.Struct(i)
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return fmt.Errorf("invalid %s: failed %q check", errs[0].Field(), errs[0].Tag())
	}
	return err
}

// validClientName rejects blank names and control characters
func validClientName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) == "" {
		return false
	}
	return strings.IndexFunc(name, unicode.IsControl) < 0
}
