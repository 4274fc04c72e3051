package order

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentStatusCompleted is the provider status of a captured payment.
const PaymentStatusCompleted = "COMPLETED"

// Customer holds contact and shipping details for a print order.
type Customer struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	PostCode    string `json:"postcode"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Request is a single incoming order. It lives for the duration of one
// HTTP request and is never persisted.
type Request struct {
	Images         []string
	Customer       *Customer
	PaymentOrderID string
}

// Payment is the payment provider's view of an order.
type Payment struct {
	OrderID  string
	Status   string
	Amount   decimal.Decimal
	Currency string
}

// Completed reports whether the payment was captured.
func (p Payment) Completed() bool {
	return p.Status == PaymentStatusCompleted
}

// PrintJob is the print provider's record of a placed job. Raw holds the
// provider JSON verbatim and is returned to the client untouched.
type PrintJob struct {
	ID  string
	Raw []byte
}

// Result is the outcome of a successfully processed order.
type Result struct {
	Job *PrintJob
	// Replayed is set when the payment already had a print job and no new
	// job was created.
	Replayed bool
}

// PaymentVerifier fetches the authoritative payment state of an order.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentOrderID string) (Payment, error)
}

// Document is an assembled print-ready file.
type Document struct {
	Data  []byte
	Pages int
}

// DocumentAssembler turns image sources into one paginated document.
type DocumentAssembler interface {
	Assemble(ctx context.Context, sources []string) (*Document, error)
}

// PrintSubmitter places a job with the print provider and uploads the document.
type PrintSubmitter interface {
	SubmitPrintJob(ctx context.Context, doc *Document, c Customer) (*PrintJob, error)
}

// Confirmation is the message sent to a customer after a job is placed.
type Confirmation struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers confirmations. Failures never fail the order.
type Notifier interface {
	Notify(ctx context.Context, msg Confirmation) error
}

// Archiver keeps a copy of the assembled document. Failures never fail the order.
type Archiver interface {
	Archive(ctx context.Context, paymentOrderID string, job *PrintJob, doc *Document) error
}

// Ledger de-duplicates orders by payment order identifier.
type Ledger interface {
	// Reserve claims the payment's order id. It returns the stored job when
	// the payment was already fulfilled, and ErrAlreadyProcessing when
	// another request holds the claim.
	Reserve(ctx context.Context, p Payment) (*PrintJob, error)
	// Complete records the placed job for a reserved payment.
	Complete(ctx context.Context, paymentOrderID string, job *PrintJob) error
	// Release drops a reservation that did not produce a job.
	Release(ctx context.Context, paymentOrderID string) error
}

// ConfirmationFor renders the customer confirmation for a placed job.
func ConfirmationFor(c Customer, paymentOrderID, jobID string) Confirmation {
	var b strings.Builder
	b.WriteString("Hello " + c.Name + ",\n\n")
	b.WriteString("Thank you for your purchase! Your custom coloring book is being printed and ")
	b.WriteString("will be shipped to the address you provided. We'll notify you when your ")
	b.WriteString("order ships.\n\n")
	b.WriteString("Order ID (PayPal): " + paymentOrderID + "\n")
	b.WriteString("Lulu Job ID: " + jobID + "\n\n")
	b.WriteString("Thank you for choosing ColorMuse Books!\n")

	return Confirmation{
		To:      c.Email,
		Subject: "Your ColorMuse Books Order",
		Body:    b.String(),
	}
}
