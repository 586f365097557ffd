package validator

import (
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
)

func secureRepositoryURLValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return service.ValidateRepositoryURL(val) == nil
}

func jobStatusValidator(fl validator.FieldLevel) bool {
	return model.JobStatus(fl.Field().String()).IsValid()
}

func commitHashValidator(fl validator.FieldLevel) bool {
	return builder.IsCommitHash(fl.Field().String())
}

func artifactFileNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" || strings.HasPrefix(val, "/") || strings.Contains(val, "\\") {
		return false
	}
	cleaned := path.Clean(val)
	return cleaned == val && cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
