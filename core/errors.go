package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Sentinel failures for the billing pipeline. Providers and the delivery
// engine wrap these with %w so callers can branch with errors.Is while the
// mapper below still produces a uniform envelope.
var (
	ErrMalformedToken    = errors.New("core: malformed signed payload")
	ErrMalformedResponse = errors.New("core: malformed store response")
	ErrSigningFailed     = errors.New("core: credential signing failed")
	ErrStoreUnavailable  = errors.New("core: store unavailable")
	ErrDispatchFailed    = errors.New("core: webhook dispatch failed")
)

const (
	BillingErrorMalformedToken    = "IAP_MALFORMED_TOKEN"
	BillingErrorMalformedResponse = "IAP_MALFORMED_RESPONSE"
	BillingErrorSigningFailed     = "IAP_SIGNING_FAILED"
	BillingErrorStoreUnavailable  = "IAP_STORE_UNAVAILABLE"
	BillingErrorDispatchFailed    = "IAP_DISPATCH_FAILED"
	BillingErrorNotFound          = "IAP_NOT_FOUND"
	BillingErrorValidation        = "IAP_VALIDATION"
	BillingErrorConflict          = "IAP_CONFLICT"
	BillingErrorUnauthorized      = "IAP_UNAUTHORIZED"
	BillingErrorRateLimited       = "IAP_RATE_LIMITED"
	BillingErrorStorage           = "IAP_STORAGE"
)

func billingErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBillingErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrMalformedToken):
		return newBillingError(err.Error(), goerrors.CategoryValidation, BillingErrorMalformedToken)
	case errors.Is(err, ErrMalformedResponse):
		return newBillingError(err.Error(), goerrors.CategoryExternal, BillingErrorMalformedResponse)
	case errors.Is(err, ErrSigningFailed):
		return newBillingError(err.Error(), goerrors.CategoryInternal, BillingErrorSigningFailed)
	case errors.Is(err, ErrStoreUnavailable):
		return newBillingError(err.Error(), goerrors.CategoryExternal, BillingErrorStoreUnavailable)
	case errors.Is(err, ErrDispatchFailed):
		return newBillingError(err.Error(), goerrors.CategoryOperation, BillingErrorDispatchFailed)
	case errors.Is(err, ErrAPIKeyNotFound):
		return newBillingError(err.Error(), goerrors.CategoryAuth, BillingErrorUnauthorized)
	case errors.Is(err, ErrAppNotFound),
		errors.Is(err, ErrSubscriberNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrEndpointNotFound),
		errors.Is(err, ErrDeliveryNotFound):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newBillingError(err.Error(), goerrors.CategoryRateLimit, BillingErrorRateLimited)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"):
		return newBillingError(err.Error(), goerrors.CategoryAuth, BillingErrorUnauthorized)
	case strings.Contains(msg, "duplicate"), strings.Contains(msg, "unique constraint"):
		return newBillingError(err.Error(), goerrors.CategoryConflict, BillingErrorConflict)
	case strings.Contains(msg, "not found"):
		return newBillingError(err.Error(), goerrors.CategoryNotFound, BillingErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBillingError(err.Error(), goerrors.CategoryBadInput, BillingErrorValidation)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBillingErrorEnvelope(mapped)
}

func newBillingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBillingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBillingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = billingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBillingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBillingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BillingErrorValidation
	case goerrors.CategoryNotFound:
		return BillingErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BillingErrorUnauthorized
	case goerrors.CategoryConflict:
		return BillingErrorConflict
	case goerrors.CategoryRateLimit:
		return BillingErrorRateLimited
	case goerrors.CategoryExternal:
		return BillingErrorStoreUnavailable
	case goerrors.CategoryOperation:
		return BillingErrorDispatchFailed
	default:
		return BillingErrorStorage
	}
}

func billingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
