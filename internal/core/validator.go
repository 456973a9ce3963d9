package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"wardrobe/internal/types"
)

// Validator wraps go-playground/validator and registers domain-specific
// rules. Validation failures are reported as AppErrors carrying a
// per-field details map so clients see which constraint broke.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())

	// plan_label accepts the customer-facing plan names.
	_ = v.RegisterValidation("plan_label", func(fl validator.FieldLevel) bool {
		switch types.PlanLabelCode(fl.Field().String()) {
		case types.LabelStarter, types.LabelPlus, types.LabelPro:
			return true
		}
		return false
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its `validate` tags.
// Returns nil on success, or an AppError with code validation_failed and a
// field -> constraint details map.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not run", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldKey(fe)] = constraintMessage(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		"request validation failed",
		nil,
		details,
	)
}

// fieldKey renders the struct namespace below the root type in snake-ish
// dotted form, e.g. "Body.ReturnURL" -> "return_url" for flat requests.
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

// constraintMessage describes the violated constraint without echoing the
// submitted value.
func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "plan_label":
		return "must be a known plan"
	default:
		return "failed constraint: " + fe.Tag()
	}
}
