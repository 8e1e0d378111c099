// Package response writes the JSON envelope shared by every HTTP endpoint.
package response

import (
	"net/http"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/gin-gonic/gin"
)

type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func OK(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// Error aborts the request with the status for err's kind. Server-side kinds
// get a generic message; the real error is attached to the context for the
// request logger.
func Error(c *gin.Context, err error) {
	kind := customErrors.KindOf(err)
	status := StatusFor(kind)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorBody{StatusCode: status, Kind: string(kind), Message: msg, Success: false})
}

func StatusFor(k customErrors.Kind) int {
	switch k {
	case customErrors.KindValidation, customErrors.KindUploadFailed:
		return http.StatusBadRequest
	case customErrors.KindInvalidCredentials,
		customErrors.KindTokenInvalid,
		customErrors.KindTokenExpired,
		customErrors.KindTokenReused:
		return http.StatusUnauthorized
	case customErrors.KindAccountNotFound, customErrors.KindChannelNotFound:
		return http.StatusNotFound
	case customErrors.KindDuplicateUsername, customErrors.KindDuplicateEmail:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
