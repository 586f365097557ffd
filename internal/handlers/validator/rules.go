package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("secure_repo_url", secureRepositoryURLValidator),
		},
		{
			Rule: registerFn("job_status", jobStatusValidator),
		},
		{
			Rule: registerFn("commit_hash", commitHashValidator),
		},
	}
}

func NewArtifactValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("artifact_file_name", artifactFileNameValidator),
		},
	}
}
