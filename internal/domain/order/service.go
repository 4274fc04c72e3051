package order

import (
	"context"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Option configures a Service.
type Option func(*Service)

// WithArchiver stores a copy of every submitted document.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithExpectedAmount rejects completed payments whose captured amount or
// currency differ from the book price.
func WithExpectedAmount(amount decimal.Decimal, currency string) Option {
	return func(s *Service) {
		s.expectedAmount = amount
		s.expectedCurrency = strings.ToUpper(currency)
	}
}

// WithMeterProvider records order outcomes on the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service runs the order pipeline: validate, verify payment, assemble the
// document, submit the print job, then notify. Every provider call is made
// at most once per request.
type Service struct {
	payments  PaymentVerifier
	assembler DocumentAssembler
	printer   PrintSubmitter
	notifier  Notifier
	ledger    Ledger
	archiver  Archiver

	expectedAmount   decimal.Decimal
	expectedCurrency string

	meterProvider metric.MeterProvider
	outcomes      metric.Int64Counter
}

// NewService creates an order Service with the required collaborators.
func NewService(
	payments PaymentVerifier,
	assembler DocumentAssembler,
	printer PrintSubmitter,
	notifier Notifier,
	ledger Ledger,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		payments:      payments,
		assembler:     assembler,
		printer:       printer,
		notifier:      notifier,
		ledger:        ledger,
		meterProvider: noop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	outcomes, err := s.meterProvider.Meter("colormuse/order").Int64Counter("colormuse.orders",
		metric.WithDescription("Processed orders by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	s.outcomes = outcomes

	return s, nil
}

// PlaceOrder processes one order end to end. Failures up to and including
// job submission abort processing; archive and notification failures are
// logged and swallowed.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("payment_order_id", req.PaymentOrderID))

	outcome := "failed"
	defer func() {
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if err := Validate(req); err != nil {
		outcome = "invalid"
		return nil, err
	}

	payment, err := s.payments.VerifyPayment(ctx, req.PaymentOrderID)
	if err != nil {
		return nil, &StageError{Stage: StagePayment, Err: err}
	}
	payment.OrderID = req.PaymentOrderID
	if !s.paid(payment) {
		lg.Info("Payment not completed",
			zap.String("status", payment.Status),
			zap.Stringer("amount", payment.Amount),
			zap.String("currency", payment.Currency),
		)
		outcome = "payment_required"
		return nil, ErrPaymentNotCompleted
	}

	existing, err := s.ledger.Reserve(ctx, payment)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessing) {
			outcome = "conflict"
		}
		return nil, &StageError{Stage: StageReserve, Err: err}
	}
	if existing != nil {
		lg.Info("Order already fulfilled", zap.String("job_id", existing.ID))
		outcome = "replayed"
		return &Result{Job: existing, Replayed: true}, nil
	}

	placed := false
	defer func() {
		if placed {
			return
		}
		if err := s.ledger.Release(context.WithoutCancel(ctx), req.PaymentOrderID); err != nil {
			lg.Error("Release reservation", zap.Error(err))
		}
	}()

	doc, err := s.assembler.Assemble(ctx, req.Images)
	if err != nil {
		return nil, &StageError{Stage: StageAssemble, Err: err}
	}
	lg.Info("Document assembled", zap.Int("pages", doc.Pages), zap.Int("bytes", len(doc.Data)))

	job, err := s.printer.SubmitPrintJob(ctx, doc, *req.Customer)
	if err != nil {
		// The reservation is still released: a retry places a new job, and the
		// incomplete one never prints without an interior.
		var incErr *IncompleteJobError
		if errors.As(err, &incErr) {
			lg.Error("Print job left without interior", zap.String("job_id", incErr.JobID), zap.Error(err))
		}
		return nil, &StageError{Stage: StageSubmit, Err: err}
	}
	placed = true
	lg = lg.With(zap.String("job_id", job.ID))
	lg.Info("Print job submitted")

	// The job exists at the provider from here on; nothing below may fail the order.
	detached := context.WithoutCancel(ctx)
	if err := s.ledger.Complete(detached, req.PaymentOrderID, job); err != nil {
		lg.Error("Record print job", zap.Error(err))
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(detached, req.PaymentOrderID, job, doc); err != nil {
			lg.Warn("Archive document", zap.Error(err))
		}
	}
	if err := s.notifier.Notify(detached, ConfirmationFor(*req.Customer, req.PaymentOrderID, job.ID)); err != nil {
		lg.Warn("Error sending confirmation email", zap.Error(err))
	}

	outcome = "completed"
	return &Result{Job: job}, nil
}

func (s *Service) paid(p Payment) bool {
	if !p.Completed() {
		return false
	}
	if s.expectedAmount.IsZero() {
		return true
	}
	if s.expectedCurrency != "" && !strings.EqualFold(p.Currency, s.expectedCurrency) {
		return false
	}
	return p.Amount.Equal(s.expectedAmount)
}

// Validate checks that a request carries everything needed to place an
// order. It contacts no provider.
func Validate(req Request) error {
	if len(req.Images) == 0 {
		return &ValidationError{Field: "images", Reason: ReasonRequired}
	}
	for i, src := range req.Images {
		if strings.TrimSpace(src) == "" {
			return &ValidationError{Field: "images", Reason: "image " + strconv.Itoa(i) + " is empty"}
		}
	}
	if req.Customer == nil {
		return &ValidationError{Field: "customer", Reason: ReasonRequired}
	}
	if req.Customer.Email == "" {
		return &ValidationError{Field: "customer.email", Reason: ReasonRequired}
	}
	if _, err := mail.ParseAddress(req.Customer.Email); err != nil {
		return &ValidationError{Field: "customer.email", Reason: "not a valid address"}
	}
	if strings.TrimSpace(req.PaymentOrderID) == "" {
		return &ValidationError{Field: "paypal_order_id", Reason: ReasonRequired}
	}
	return nil
}
