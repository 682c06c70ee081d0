package core

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"satwallet/internal/types"
)

// Validator wraps go-playground/validator for request struct validation.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with the btc_amount custom rule
// registered.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	// btc_amount enforces the autopay amount bounds.
	_ = v.RegisterValidation("btc_amount", func(fl validator.FieldLevel) bool {
		amount := fl.Field().Float()
		return amount >= types.MinAutopayAmount && amount <= types.MaxAutopayAmount
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates a tagged request struct, translating the first
// failure into an AppError suitable for the API error envelope.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"request validation failed", err)
	}

	first := errs[0]
	code := types.ErrCodeValidationMissingField
	msg := fmt.Sprintf("field %q failed validation rule %q", first.Field(), first.Tag())
	if first.Tag() == "btc_amount" {
		code = types.ErrCodeValidationAmountRange
		msg = fmt.Sprintf("amount must be between %v and %v BTC",
			types.MinAutopayAmount, types.MaxAutopayAmount)
	}
	return types.NewAppError(code, msg, err)
}
