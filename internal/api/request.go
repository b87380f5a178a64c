package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/viacare/risk-assessor/internal/domain"
)

// assessmentRequest is the body of POST /api/v1/assessments.
type assessmentRequest struct {
	Visits []visitPayload `json:"visits" binding:"required,min=1,dive"`
}

// visitPayload uses pointers so that a missing feature is told apart from zero.
type visitPayload struct {
	Age         *float64 `json:"Age" binding:"required"`
	SystolicBP  *float64 `json:"SystolicBP" binding:"required"`
	DiastolicBP *float64 `json:"DiastolicBP" binding:"required"`
	BS          *float64 `json:"BS" binding:"required"`
	BodyTemp    *float64 `json:"BodyTemp" binding:"required"`
	HeartRate   *float64 `json:"HeartRate" binding:"required"`
}

func (r assessmentRequest) sequence() domain.ObservationSequence {
	seq := make(domain.ObservationSequence, len(r.Visits))
	for i, v := range r.Visits {
		seq[i] = domain.Observation{
			Age:         *v.Age,
			SystolicBP:  *v.SystolicBP,
			DiastolicBP: *v.DiastolicBP,
			BS:          *v.BS,
			BodyTemp:    *v.BodyTemp,
			HeartRate:   *v.HeartRate,
		}
	}
	return seq
}

// bindingDetails turns a bind error into one message per problem, naming the
// visit (1-based) and feature where possible.
func bindingDetails(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		visit, field := locateField(fe.Namespace())
		switch {
		case visit > 0 && fe.Tag() == "required":
			details = append(details, fmt.Sprintf("visit #%d: missing %s", visit, field))
		case visit > 0:
			details = append(details, fmt.Sprintf("visit #%d, field '%s': failed %s validation", visit, field, fe.Tag()))
		case fe.Field() == "Visits":
			details = append(details, "visits: at least one visit is required")
		default:
			details = append(details, fmt.Sprintf("%s: failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return details
}

// locateField parses namespaces such as "assessmentRequest.Visits[1].HeartRate".
func locateField(namespace string) (int, string) {
	start := strings.Index(namespace, "Visits[")
	if start < 0 {
		return 0, ""
	}
	rest := namespace[start+len("Visits["):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return 0, ""
	}
	index, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, ""
	}
	return index + 1, strings.TrimPrefix(rest[end+1:], ".")
}
