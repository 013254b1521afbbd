package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
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
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
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

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, taxruledomain.ErrDuplicateRule):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, evaluationdomain.ErrNoSnapshot):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, evaluationdomain.ErrInvalidItinerary),
		errors.Is(err, itinerary.ErrNoSegments),
		errors.Is(err, itinerary.ErrInvalidSegment),
		errors.Is(err, itinerary.ErrMissingCurrency),
		errors.Is(err, itinerary.ErrMissingTicketingDate):
		return true
	case isRuleValidationError(err):
		return true
	default:
		return false
	}
}

func isRuleValidationError(err error) bool {
	switch {
	case errors.Is(err, taxruledomain.ErrInvalidID),
		errors.Is(err, taxruledomain.ErrInvalidTaxCode),
		errors.Is(err, taxruledomain.ErrInvalidNation),
		errors.Is(err, taxruledomain.ErrInvalidTaxType),
		errors.Is(err, taxruledomain.ErrInvalidTaxAmount),
		errors.Is(err, taxruledomain.ErrInvalidTaxCurrency),
		errors.Is(err, taxruledomain.ErrInvalidDateRange),
		errors.Is(err, taxruledomain.ErrInvalidRange),
		errors.Is(err, taxruledomain.ErrInvalidRounding),
		errors.Is(err, taxruledomain.ErrInvalidLocation),
		errors.Is(err, taxruledomain.ErrInvalidFormOfPayment),
		errors.Is(err, taxruledomain.ErrInvalidPassenger):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, taxruledomain.ErrRuleNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range []error{
		ErrInvalidRequest,
		evaluationdomain.ErrInvalidItinerary,
		itinerary.ErrNoSegments,
		itinerary.ErrInvalidSegment,
		itinerary.ErrMissingCurrency,
		itinerary.ErrMissingTicketingDate,
		taxruledomain.ErrInvalidID,
		taxruledomain.ErrInvalidTaxCode,
		taxruledomain.ErrInvalidNation,
		taxruledomain.ErrInvalidTaxType,
		taxruledomain.ErrInvalidTaxAmount,
		taxruledomain.ErrInvalidTaxCurrency,
		taxruledomain.ErrInvalidDateRange,
		taxruledomain.ErrInvalidRange,
		taxruledomain.ErrInvalidRounding,
		taxruledomain.ErrInvalidLocation,
		taxruledomain.ErrInvalidFormOfPayment,
		taxruledomain.ErrInvalidPassenger,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
