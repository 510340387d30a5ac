package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/upstream"
	"github.com/gin-gonic/gin"
)

const (
	codeNotAuthenticated    = "not_authenticated"
	codeInvalidGrant        = "invalid_grant"
	codeForbidden           = "forbidden"
	codeRelationNotFound    = "relation_not_found"
	codeNotFound            = "not_found"
	codeValidation          = "validation"
	codeConflict            = "conflict"
	codeUpstreamUnreachable = "upstream_unreachable"
	codeUpstreamError       = "upstream_error"
	codeRateLimited         = "rate_limited"
	codeMethodNotAllowed    = "method_not_allowed"
	codePayloadTooLarge     = "payload_too_large"
	codeServerError         = "server_error"
)

// ErrorResponse is the error envelope of every route.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code,
		Message:   msg,
		RequestID: c.GetString(requestIDKey),
	})
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, codePayloadTooLarge
	case errors.Is(err, common.ErrNotAuthenticated):
		return http.StatusUnauthorized, codeNotAuthenticated
	case errors.Is(err, common.ErrInvalidGrant):
		return http.StatusBadRequest, codeInvalidGrant
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrMethodNotAllowed):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, common.ErrRelationNotFound):
		return http.StatusNotFound, codeRelationNotFound
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, common.ErrUpstreamUnreachable):
		return http.StatusBadGateway, codeUpstreamUnreachable
	case errors.Is(err, common.ErrUpstreamError):
		return http.StatusBadGateway, codeUpstreamError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// writeError renders err. Server errors are logged and masked; upstream
// envelope errors carry the upstream's own message and data.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && code == codeServerError {
		s.logger.Error(c.Request.Context(), "request failed",
			"request_id", c.GetString(requestIDKey), "path", c.FullPath(), "error", err)
		fail(c, status, code, "internal server error")
		return
	}

	resp := ErrorResponse{Code: code, Message: err.Error(), RequestID: c.GetString(requestIDKey)}
	var rpcErr *upstream.RPCError
	if errors.As(err, &rpcErr) {
		resp.Message = rpcErr.Message
		if len(rpcErr.Data) > 0 {
			resp.Details = rpcErr.Data
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn(c.Request.Context(), "upstream failure",
			"request_id", resp.RequestID, "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}
