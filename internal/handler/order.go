package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/colormuse/print-api/internal/domain/order"
)

const (
	msgInvalidJSON   = "Invalid JSON payload"
	msgMissingFields = "Missing required fields (images, customer, paypal_order_id)"
	msgNotPaid       = "Payment not completed. Order has not been processed."
	msgInProgress    = "Order is already being processed"
	msgProcessed     = "Order processed successfully"
	msgReplayed      = "Order already processed"
)

// mapOrderError converts domain errors to a status code and a client-safe
// message. Provider response bodies never reach the message.
func mapOrderError(err error) (int, string) {
	var vErr *order.ValidationError
	if errors.As(err, &vErr) {
		if vErr.Missing() {
			return http.StatusBadRequest, msgMissingFields
		}
		return http.StatusBadRequest, vErr.Error()
	}
	if errors.Is(err, order.ErrInvalidRequest) {
		return http.StatusBadRequest, err.Error()
	}
	if errors.Is(err, order.ErrPaymentNotCompleted) {
		return http.StatusPaymentRequired, msgNotPaid
	}
	if errors.Is(err, order.ErrAlreadyProcessing) {
		return http.StatusConflict, msgInProgress
	}

	var sErr *order.StageError
	if !errors.As(err, &sErr) {
		return http.StatusInternalServerError, "internal error"
	}
	return http.StatusInternalServerError, string(sErr.Stage) + ": " + reason(sErr.Err)
}

// reason describes a stage failure without transport internals.
func reason(err error) string {
	var (
		uploadErr *order.UploadError
		fetchErr  *order.ImageFetchError
		srcErr    *order.InvalidImageSourceError
	)
	switch {
	case errors.Is(err, order.ErrConfiguration):
		return "service is not configured for this step"
	case errors.Is(err, order.ErrAuth):
		return order.ErrAuth.Error()
	case errors.Is(err, order.ErrUploadTargetMissing):
		return order.ErrUploadTargetMissing.Error()
	case errors.As(err, &uploadErr):
		if uploadErr.StatusCode != 0 {
			return uploadErr.Error()
		}
		return "upload document: transport failure"
	case errors.As(err, &fetchErr):
		return fetchErr.Error()
	case errors.As(err, &srcErr):
		return srcErr.Error()
	default:
		return err.Error()
	}
}
