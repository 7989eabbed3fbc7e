package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"sensorpulse/internal/types"
)

// Validator wraps go-playground/validator with the domain tags:
//
//	sensor_kind     - value is a supported types.SensorKind
//	prediction_kind - value is a known types.PredictionKind
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("sensor_kind", func(fl validator.FieldLevel) bool {
		return types.SensorKind(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("prediction_kind", func(fl validator.FieldLevel) bool {
		kind := types.PredictionKind(fl.Field().String())
		for _, k := range types.AllPredictionKinds {
			if k == kind {
				return true
			}
		}
		return false
	})
	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and converts failures into a
// validation_invalid_parameter AppError listing the offending fields.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err.Error())
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed unexpectedly", err)
	}

	fields := make(map[string]any, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		fields[name] = fe.Tag()
		names = append(names, name)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter,
		"invalid parameter: "+strings.Join(names, ", "), err, fields)
}
