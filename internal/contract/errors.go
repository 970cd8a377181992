package contract

import (
	"errors"

	"github.com/alexanderramin/branchplan/internal/domain"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewErrorResponse classifies err. Internal errors get a generic message so
// driver details never reach clients.
func NewErrorResponse(err error) *ErrorResponse {
	var resp *ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}
	kind := domain.KindOf(err)
	if kind == domain.KindInternal || kind == "" {
		return &ErrorResponse{Code: domain.KindInternal, Message: "internal error"}
	}
	return &ErrorResponse{Code: kind, Message: err.Error()}
}

// ErrBadRequest builds an InvalidArgument response for malformed input
// rejected before it reaches a service.
func ErrBadRequest(message string) *ErrorResponse {
	return &ErrorResponse{Code: domain.KindInvalidArgument, Message: message}
}
