package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/viacare/risk-assessor/internal/domain"
)

const (
	tagFinite        = "finite"
	tagClinicalRange = "clinical_range"
)

// ObservationValidator checks a sequence against the observation schema
// before it is submitted.
type ObservationValidator struct {
	validate      *validator.Validate
	enforceRanges bool
}

// NewObservationValidator creates a validator. Values must always be finite;
// with enforceRanges they must also lie within the clinical range of their feature.
func NewObservationValidator(enforceRanges bool) *ObservationValidator {
	v := &ObservationValidator{
		validate:      validator.New(),
		enforceRanges: enforceRanges,
	}
	v.validate.RegisterStructValidation(v.validateObservation, domain.Observation{})
	return v
}

func (v *ObservationValidator) validateObservation(sl validator.StructLevel) {
	obs := sl.Current().Interface().(domain.Observation)

	for _, f := range domain.ObservationSchema {
		value, _ := obs.Value(f.Key)
		name := string(f.Key)

		if math.IsNaN(value) || math.IsInf(value, 0) {
			sl.ReportError(value, name, name, tagFinite, "")
			continue
		}
		if v.enforceRanges && (value < f.Min || value > f.Max) {
			param := fmt.Sprintf("%s and %s", domain.FormatValue(f.Min), domain.FormatValue(f.Max))
			if f.Unit != "" {
				param += " " + f.Unit
			}
			sl.ReportError(value, name, name, tagClinicalRange, param)
		}
	}
}

// ValidateSequence returns domain.ErrEmptySequence for an empty sequence and
// domain.ValidationErrors naming every offending visit and feature otherwise.
func (v *ObservationValidator) ValidateSequence(sequence domain.ObservationSequence) error {
	if len(sequence) == 0 {
		return domain.ErrEmptySequence
	}

	var problems domain.ValidationErrors
	for i, obs := range sequence {
		err := v.validate.Struct(obs)
		if err == nil {
			continue
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate visit #%d: %w", i+1, err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, domain.NewValidationError(i+1, fe.Field(), describeFieldError(fe), fe.Value()))
		}
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case tagFinite:
		return "must be a finite number"
	case tagClinicalRange:
		return fmt.Sprintf("%s must be between %s", domain.FeatureKey(fe.Field()).Label(), fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
