package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// turnErrorCases covers what the controller may return from a turn.
var turnErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidMessage, Status: http.StatusBadRequest, Message: "session_key and text are required"},
	{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "registration storage unavailable"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	status, message := mapError(err, cases, fallbackStatus, fallbackMessage)
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, NewErrorResponse(c, message))
}

func mapError(err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			return cs.Status, cs.Message
		}
	}
	return fallbackStatus, fallbackMessage
}
