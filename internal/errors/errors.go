package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel kinds. Concrete errors are marked with one of these so callers can
// classify them with Is* helpers regardless of wrapping.
var (
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	statusCodeMap = map[error]int{
		ErrValidation:       http.StatusUnprocessableEntity,
		ErrNotFound:         http.StatusNotFound,
		ErrInvalidOperation: http.StatusBadRequest,
		ErrSystem:           http.StatusInternalServerError,
	}
)

const detailsPrefix = "__json__:"

const (
	ErrCodeValidation       = "validation_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeSystemError      = "system_error"
)

// InternalError is a classified domain error.
type InternalError struct {
	Code    string
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is matches on code so that marked errors compare equal to their sentinel.
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return e.Code == t.Code
}

func new(code, message string) *InternalError {
	return &InternalError{Code: code, Message: message}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// HTTPStatusFromErr maps an error onto the status code of its kind.
func HTTPStatusFromErr(err error) int {
	for kind, code := range statusCodeMap {
		if errors.Is(err, kind) {
			return code
		}
	}
	return http.StatusInternalServerError
}

// Hint returns the user-facing hint attached to err, or fallback when none is set.
func Hint(err error, fallback string) string {
	hints := errors.GetAllHints(err)
	if len(hints) == 0 {
		return fallback
	}
	return hints[0]
}

// Details collects the reportable details attached with WithReportableDetails.
func Details(err error) map[string]any {
	details := make(map[string]any)
	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if !strings.HasPrefix(payload, detailsPrefix) {
				continue
			}
			var parsed map[string]any
			if json.Unmarshal([]byte(payload[len(detailsPrefix):]), &parsed) == nil {
				for k, v := range parsed {
					details[k] = v
				}
			}
		}
	}
	return details
}
