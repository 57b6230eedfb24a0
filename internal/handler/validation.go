package handler

import (
	"github.com/loopyluu007/anime-ai/internal/service"
)

func formatValidationErrors(err error) interface{} {
	if details := service.ValidationDetails(err); details != nil {
		return details
	}
	return nil
}
