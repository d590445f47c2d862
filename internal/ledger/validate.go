package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/erpstore/internal/schema"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Custom tags are registered on a fresh instance and cannot fail.
	_ = v.RegisterValidation("movement_type", func(fl validator.FieldLevel) bool {
		return schema.MovementType(fl.Field().String()).Valid()
	})
	return v
}

// checkInput runs the validate tags of in. Violations are reported as a
// domain error carrying sentinel, one clause per failing field.
func checkInput(sentinel error, entityID string, in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newError(sentinel, entityID, "%v", err)
	}
	clauses := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		clauses = append(clauses, describeField(fe))
	}
	return newError(sentinel, entityID, "%s", strings.Join(clauses, "; "))
}

// checkValue validates a single value against tag.
func checkValue(sentinel error, entityID string, v any, tag, what string) error {
	if err := validate.Var(v, tag); err != nil {
		return newError(sentinel, entityID, "%s %s", what, describeTag(tag))
	}
	return nil
}

func describeField(fe validator.FieldError) string {
	name := fe.Namespace()
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch fe.Tag() {
	case "movement_type":
		return fmt.Sprintf("unknown movement type %q", fe.Value())
	case "required_without":
		return fmt.Sprintf("%s or %s must not be zero", name, fe.Param())
	}
	return name + " " + describeTag(fe.Tag()+paramSuffix(fe.Param()))
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}

func describeTag(tag string) string {
	name, param, _ := strings.Cut(tag, "=")
	switch name {
	case "required":
		return "is required"
	case "gt":
		if param == "0" {
			return "must be positive"
		}
		return "must be greater than " + param
	case "gte":
		if param == "0" {
			return "must not be negative"
		}
		return "must be at least " + param
	case "min":
		return "needs at least " + param + " entries"
	}
	return "fails " + tag
}
