package api

import (
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"github.com/Jarrydtb/scripter/internal/models"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrNotBuildable):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidCron):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(statusFor(err), utils.H{"error": err.Error()})
}
