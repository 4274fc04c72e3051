package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order processing.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrConfiguration       = errors.New("configuration error")
	ErrAuth                = errors.New("provider rejected credentials")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrUploadTargetMissing = errors.New("print job response did not include an interior upload target")
	ErrAlreadyProcessing   = errors.New("order is already being processed")
)

// ReasonRequired is the ValidationError reason for an absent field.
const ReasonRequired = "required"

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Missing reports whether a top-level request field is absent.
func (e *ValidationError) Missing() bool {
	if e.Reason != ReasonRequired {
		return false
	}
	switch e.Field {
	case "images", "customer", "paypal_order_id":
		return true
	}
	return false
}

// InvalidImageSourceError indicates an image source that is neither an
// inline image nor a URL, or that does not decode to a non-empty image.
type InvalidImageSourceError struct {
	Index  int
	Reason string
}

func (e *InvalidImageSourceError) Error() string {
	return fmt.Sprintf("image %d: invalid image source: %s", e.Index, e.Reason)
}

// ImageFetchError indicates a URL image source could not be downloaded.
type ImageFetchError struct {
	Index      int
	URL        string
	StatusCode int
	Err        error
}

func (e *ImageFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image %d: fetch %s: unexpected status %d", e.Index, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("image %d: fetch %s: %v", e.Index, e.URL, e.Err)
}

func (e *ImageFetchError) Unwrap() error { return e.Err }

// UploadError indicates the document upload to the print provider failed.
type UploadError struct {
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload document: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload document: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IncompleteJobError reports a print job that exists at the provider but
// never received its interior file.
type IncompleteJobError struct {
	JobID string
	Err   error
}

func (e *IncompleteJobError) Error() string { return e.Err.Error() }

func (e *IncompleteJobError) Unwrap() error { return e.Err }

// NotificationError wraps any failure to deliver a confirmation.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return "send confirmation: " + e.Err.Error()
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Stage names a step of order processing.
type Stage string

// Processing stages in execution order.
const (
	StageValidate Stage = "validate"
	StagePayment  Stage = "verify payment"
	StageReserve  Stage = "reserve order"
	StageAssemble Stage = "assemble document"
	StageSubmit   Stage = "submit print job"
)

// StageError records which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
