package service

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/loopyluu007/anime-ai/internal/apperr"
)

// ValidationDetails flattens validator errors into field -> failed tag.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = e.Tag()
	}
	return out
}

func validationError(message string, err error) *apperr.Error {
	e := apperr.Wrap(apperr.KindValidation, err, "%s", message)
	if details := ValidationDetails(err); details != nil {
		e.Details = details
	}
	return e
}
