package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/export"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/pagination"
)

// Response is the envelope every JSON reply uses.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response codes
const (
	CodeSuccess      = "000"
	CodeBadRequest   = "400"
	CodeForbidden    = "403"
	CodeNotFound     = "404"
	CodeConflict     = "409"
	CodeInternal     = "500"
	CodeBadGateway   = "502"
	codeCreated      = "201"
	messageSucceeded = "success"
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: messageSucceeded, Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: codeCreated, Message: "created", Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

// statusFor maps a domain error to an HTTP status and response code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, document.ErrInvalidField),
		errors.Is(err, geometry.ErrInvalidGeometry),
		errors.Is(err, pagination.ErrRunaway):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, document.ErrUnauthorized):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, document.ErrDocumentLocked):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, export.ErrExportFailure):
		return http.StatusBadGateway, CodeBadGateway
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func failErr(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	fail(c, status, code, message)
}
