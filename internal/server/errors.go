package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	reportdomain "github.com/smallbiznis/staybook/internal/report/domain"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrMessageInFlight    = errors.New("message_in_flight")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrInternal           = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last error a handler attached, unless
// the handler already wrote its own body.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

// newValidationError reports a single offending field.
func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// errorRule maps a family of errors onto one response. Rules are checked in
// order, so integrity and conflict errors win over not-found.
type errorRule struct {
	match   func(error) bool
	status  int
	errType string
	message string
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var errorRules = []errorRule{
	{is(rollup.ErrIntegrity), http.StatusConflict, "integrity_error", "summaries would diverge from the ledger"},
	{is(bookingdomain.ErrConflict), http.StatusConflict, "conflict", "transaction was modified concurrently"},
	{is(ErrMessageInFlight), http.StatusConflict, "message_in_flight", "message is already being processed"},
	{is(ErrRateLimited), http.StatusTooManyRequests, "rate_limited", "too many requests"},
	{is(bookingdomain.ErrStorage, ErrServiceUnavailable), http.StatusServiceUnavailable, "storage_error", "storage unavailable"},
	{is(ErrNotFound, bookingdomain.ErrNotFound, settings.ErrNotFound, gorm.ErrRecordNotFound), http.StatusNotFound, "not_found", "not found"},
}

var internalPayload = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload
	}

	var fields []ValidationError
	var vErr *ValidationErrors
	switch {
	case errors.As(err, &vErr) && vErr != nil:
		fields = vErr.Errors
	case isValidationError(err):
		fields = []ValidationError{describeValidationError(err)}
	}
	if fields != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	for _, rule := range errorRules {
		if rule.match(err) {
			return rule.status, errorPayload{Type: rule.errType, Message: rule.message}
		}
	}
	return http.StatusInternalServerError, internalPayload
}

// classifyErrorForLog feeds the request logger the same taxonomy clients
// see.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

var isSettingsInputError = is(
	ErrInvalidRequest,
	settings.ErrInvalidKey,
	settings.ErrInvalidKind,
	settings.ErrInvalidValue,
	settings.ErrKindMismatch,
)

func isValidationError(err error) bool {
	return isSettingsInputError(err) ||
		bookingdomain.IsValidationError(err) ||
		reportdomain.IsValidationError(err) ||
		directorydomain.IsValidationError(err)
}

func describeValidationError(err error) ValidationError {
	code := validationErrorCode(err)
	return ValidationError{
		Field:   validationErrorField(code),
		Code:    code,
		Message: validationErrorMessage(code),
	}
}

// validationErrorCode returns the innermost error text, which for domain
// sentinels is their snake_case code.
func validationErrorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// validationErrorField derives the field from codes such as
// invalid_commission or unknown_agent.
func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	for _, prefix := range []string{"invalid_", "missing_", "unknown_", "inactive_"} {
		if field, ok := strings.CutPrefix(code, prefix); ok {
			return field
		}
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_amount":
		return "amount is required"
	case "unknown_agent":
		return "agent is not registered"
	case "inactive_agent":
		return "agent is inactive"
	case "unknown_location":
		return "location is not registered"
	case "inactive_location":
		return "location is inactive"
	default:
		return "invalid value"
	}
}
