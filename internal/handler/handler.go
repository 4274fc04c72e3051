// Package handler exposes order placement over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/colormuse/print-api/internal/domain/order"
)

// OrderPath is the single order endpoint.
const OrderPath = "/api/order"

const defaultMaxBodyBytes = 64 << 20

// OrderPlacer is implemented by *order.Service.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.Request) (*order.Result, error)
}

// Config holds non-dependency settings for the Handler.
type Config struct {
	// MaxBodyBytes caps the request body; inline images make it large.
	MaxBodyBytes int64
}

// Handler serves POST /api/order.
type Handler struct {
	orders       OrderPlacer
	maxBodyBytes int64
}

// New constructs a Handler.
func New(cfg Config, orders OrderPlacer) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{orders: orders, maxBodyBytes: cfg.MaxBodyBytes}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(OrderPath, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		lg.Warn("Read request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	req, err := decodeRequest(body)
	if err != nil {
		lg.Debug("Decode order request", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	res, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		status, msg := mapOrderError(err)
		if status >= http.StatusInternalServerError {
			lg.Error("Order processing failed", zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	message := msgProcessed
	if res.Replayed {
		message = msgReplayed
	}
	writeJob(w, message, res.Job)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJob(w http.ResponseWriter, message string, job *order.PrintJob) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		e.Field("lulu_job", func(e *jx.Encoder) {
			if job == nil || len(job.Raw) == 0 {
				e.Null()
				return
			}
			e.Raw(job.Raw)
		})
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
