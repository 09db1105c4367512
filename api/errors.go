package api

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrClientNotFound      = errors.New("client not found")
	ErrClientNotActivated  = errors.New("client is not activated")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentNotAttached = errors.New("document is not attached")
	ErrDocumentRemoved     = errors.New("document is removed")
	ErrInternal            = errors.New("internal error")
)

// ErrorResponse is the body of a failed call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var codes = []struct {
	err    error
	code   string
	status int
}{
	{ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
	{ErrClientNotFound, "client_not_found", http.StatusNotFound},
	{ErrClientNotActivated, "client_not_activated", http.StatusPreconditionFailed},
	{ErrDocumentNotFound, "document_not_found", http.StatusNotFound},
	{ErrDocumentNotAttached, "document_not_attached", http.StatusPreconditionFailed},
	{ErrDocumentRemoved, "document_removed", http.StatusPreconditionFailed},
}

// ToErrorResponse returns the body and HTTP status that report err.
func ToErrorResponse(err error) (ErrorResponse, int) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return ErrorResponse{Code: c.code, Message: err.Error()}, c.status
		}
	}
	return ErrorResponse{Code: "internal", Message: err.Error()}, http.StatusInternalServerError
}

// FromErrorResponse returns the error reported by a response, wrapping the sentinel of
// its code.
func FromErrorResponse(resp ErrorResponse) error {
	for _, c := range codes {
		if c.code == resp.Code {
			return errors.Wrap(c.err, resp.Message)
		}
	}
	return errors.Wrap(ErrInternal, resp.Message)
}
