package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator is a wrapper around the actual validator
// It sets up the validator and extract the rule error message from the underlying error
type Validator struct {
	validator *validator.Validate
	rules     []ValidationRule
}

func NewValidator() *Validator {
	v := validator.New()
	return &Validator{validator: v}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
	v.rules = append(v.rules, rules...)
}

// Struct validates s and turns field errors into an ErrInvalidRequest naming every failing field.
func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return NewErrInvalidRequest("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "secure_repo_url":
		return fmt.Sprintf("%s %q must be an https repository url", fe.Field(), fe.Value())
	case "job_status":
		return fmt.Sprintf("%s %q is not one of QUEUED, RUNNING, SUCCEEDED or FAILED", fe.Field(), fe.Value())
	case "commit_hash":
		return fmt.Sprintf("%s must be a 40 characters hex commit hash", fe.Field())
	case "artifact_file_name":
		return fmt.Sprintf("%s %q must be a relative path inside the build tree", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed on the %s rule", fe.Field(), fe.Tag())
	}
}
