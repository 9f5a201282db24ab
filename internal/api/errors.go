package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/itembank"
	"github.com/02061997/ai-tutor-experiment/internal/quiz"
	"github.com/02061997/ai-tutor-experiment/internal/selector"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// apiError is the HTTP face of a domain error. Messages are fixed per code
// so internal details never reach examinees.
type apiError struct {
	status  int
	code    string
	message string
}

var (
	errNotFound       = apiError{http.StatusNotFound, "not_found", "attempt or item not found"}
	errAlreadyStarted = apiError{http.StatusConflict, "already_started", "attempt already started"}
	errUnexpectedItem = apiError{http.StatusConflict, "unexpected_item", "answer does not match the current item"}
	errNotInProgress  = apiError{http.StatusConflict, "not_in_progress", "attempt is not in progress"}
	errConflict       = apiError{http.StatusConflict, "conflict", "attempt was updated concurrently, retry"}
	errValidation     = apiError{http.StatusBadRequest, "validation", "request is invalid"}
	errInvalidOption  = apiError{http.StatusBadRequest, "invalid_option", "selected option does not exist"}
	errNoItems        = apiError{http.StatusServiceUnavailable, "no_items", "no items are available for this quiz"}
	errInternal       = apiError{http.StatusInternalServerError, "internal", "internal error"}
)

func classify(err error) apiError {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, itembank.ErrNotFound):
		return errNotFound
	case errors.Is(err, attempt.ErrAlreadyStarted):
		return errAlreadyStarted
	case errors.Is(err, attempt.ErrUnexpectedItem):
		return errUnexpectedItem
	case errors.Is(err, attempt.ErrNotInProgress):
		return errNotInProgress
	case errors.Is(err, store.ErrConflict):
		return errConflict
	case errors.Is(err, quiz.ErrInvalidOption):
		return errInvalidOption
	case errors.Is(err, quiz.ErrInvalidRequest):
		return errValidation
	case errors.Is(err, selector.ErrItemBankExhausted):
		return errNoItems
	}
	return errInternal
}

func respondError(c *gin.Context, e apiError) {
	c.AbortWithStatusJSON(e.status, ErrorEnvelope{Error: APIError{Message: e.message, Code: e.code}})
}
