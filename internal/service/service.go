// Package service holds the account workflows.
//
//	Handler (HTTP)  → Service (business rules) → repository.Manager (DB)
//	cmd/manage (CLI) ↗                          ↘ auth, notify, ratelimit
//
// Services never see HTTP types. They return *apperror.AppError for every
// failure a caller is expected to handle and wrap anything else with
// fmt.Errorf so the handler can log it and answer 500.
package service

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/accounts/internal/apperror"
)

// Field limits shared by registration, superuser creation and profiles.
const (
	MaxEmailLength    = 100
	MaxNameLength     = 30
	MaxBioLength      = 500
	MaxLocationLength = 30
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// fieldErrors converts ozzo validation output into the field → messages
// shape carried by apperror. Non-validation errors come back unchanged.
func fieldErrors(err error) (map[string][]string, error) {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return nil, err
	}
	out := make(map[string][]string, len(errs))
	for field, fe := range errs {
		if fe != nil {
			out[field] = append(out[field], fe.Error())
		}
	}
	return out, nil
}

// validationError turns a non-empty field map into an AppError.
func validationError(fields map[string][]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apperror.ValidationFields(fields)
}
