// Package validator registers request binding rules with gin.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

var registerOnce sync.Once

// FieldError is the client-facing form of a failed rule
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"min":      "is too short",
	"max":      "is too long",
	"oneof":    "has an unsupported value",
	"plan":     "must be one of FREE, PRO, AGENCY, ENTERPRISE",
	"role":     "must be ORG_ADMIN or ORG_USER",
	"uuid":     "must be a UUID",
}

// Register installs the custom rules on gin's default validator. It is safe
// to call more than once.
func Register() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		err = Install(v)
	})
	return err
}

// Install adds the plan and role rules and json field naming to v.
func Install(v *validator.Validate) error {
	if err := v.RegisterValidation("plan", validatePlan); err != nil {
		return fmt.Errorf("failed to register plan rule: %w", err)
	}
	if err := v.RegisterValidation("role", validateRole); err != nil {
		return fmt.Errorf("failed to register role rule: %w", err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return nil
}

func validatePlan(fl validator.FieldLevel) bool {
	_, ok := model.ParsePlan(fl.Field().String())
	return ok
}

// validateRole only admits roles an organization admin may hand out.
func validateRole(fl validator.FieldLevel) bool {
	role, ok := model.ParseRole(fl.Field().String())
	return ok && role.Assignable()
}

// Describe flattens binding errors into field messages. Errors that are not
// validation failures come back as a single entry with an empty field.
func Describe(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: "malformed request body"}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

// Summary joins Describe into one line.
func Summary(err error) string {
	parts := make([]string, 0)
	for _, fe := range Describe(err) {
		if fe.Field == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return strings.Join(parts, "; ")
}
