package helpers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ticketi/ticketi/internal/apperr"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func RespondWithError(c *gin.Context, statusCode int, customMessage string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: customMessage,
	})
}

// RespondWithAppError maps a service error kind onto an HTTP status.
// Unrecognized errors become a 500 without leaking internals.
func RespondWithAppError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		RespondWithError(c, http.StatusBadRequest, err.Error())
	case apperr.KindAuthentication:
		RespondWithError(c, http.StatusUnauthorized, err.Error())
	case apperr.KindAuthorization:
		RespondWithError(c, http.StatusForbidden, err.Error())
	case apperr.KindNotFound:
		RespondWithError(c, http.StatusNotFound, err.Error())
	case apperr.KindConflict, apperr.KindUnavailable:
		RespondWithError(c, http.StatusConflict, err.Error())
	default:
		RespondWithError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
