package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colormuse/print-api/internal/domain/order"
)

type placerFunc func(ctx context.Context, req order.Request) (*order.Result, error)

func (f placerFunc) PlaceOrder(ctx context.Context, req order.Request) (*order.Result, error) {
	return f(ctx, req)
}

func serve(h http.Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, OrderPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest([]byte(`{
		"images": ["data:image/png;base64,AAAA", "https://img.example/p2.png"],
		"customer": {
			"name": "Ada Lovelace",
			"email": "ada@example.com",
			"address1": "12 St James's Square",
			"city": "London",
			"zip": "SW1Y 4JH",
			"country": "GB",
			"phone": "+44 20 0000 0000",
			"newsletter": true
		},
		"paypal_order_id": "5O190127TN364715T",
		"cart": {"items": [1, 2, 3]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"data:image/png;base64,AAAA", "https://img.example/p2.png"}, req.Images)
	assert.Equal(t, "5O190127TN364715T", req.PaymentOrderID)
	require.NotNil(t, req.Customer)
	assert.Equal(t, order.Customer{
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Street1:     "12 St James's Square",
		City:        "London",
		PostCode:    "SW1Y 4JH",
		CountryCode: "GB",
		PhoneNumber: "+44 20 0000 0000",
	}, *req.Customer)
}

func TestDecodeRequest_CanonicalWinsOverEmptyAlias(t *testing.T) {
	req, err := decodeRequest([]byte(`{"customer":{"street1":"1 Main St","address1":"","state_code":"CA"}}`))
	require.NoError(t, err)
	require.NotNil(t, req.Customer)
	assert.Equal(t, "1 Main St", req.Customer.Street1)
	assert.Equal(t, "CA", req.Customer.StateCode)
}

func TestDecodeRequest_Nulls(t *testing.T) {
	req, err := decodeRequest([]byte(`{"images":null,"customer":null,"paypal_order_id":null}`))
	require.NoError(t, err)
	assert.Nil(t, req.Images)
	assert.Nil(t, req.Customer)
	assert.Empty(t, req.PaymentOrderID)
}

func TestDecodeRequest_Invalid(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`[]`,
		`"images"`,
		`{"images": "one"}`,
		`{"images": [1]}`,
		`{"customer": "ada"}`,
		`{"customer": {"email": 5}}`,
		`{"paypal_order_id": 42}`,
		`{"images": ["a"]} {}`,
		`{"images": ["a"]`,
	} {
		_, err := decodeRequest([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New(Config{}, placerFunc(func(context.Context, order.Request) (*order.Result, error) {
		t.Fatal("unexpected call")
		return nil, nil
	}))

	w := serve(h, http.MethodGet, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestHandler_InvalidJSON(t *testing.T) {
	called := false
	h := New(Config{}, placerFunc(func(context.Context, order.Request) (*order.Result, error) {
		called = true
		return nil, nil
	}))

	w := serve(h, http.MethodPost, `{"images":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON payload"}`, w.Body.String())
	assert.False(t, called)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	h := New(Config{MaxBodyBytes: 16}, placerFunc(func(context.Context, order.Request) (*order.Result, error) {
		t.Fatal("unexpected call")
		return nil, nil
	}))

	w := serve(h, http.MethodPost, `{"images":["`+strings.Repeat("a", 64)+`"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandler_Success(t *testing.T) {
	var got order.Request
	h := New(Config{}, placerFunc(func(_ context.Context, req order.Request) (*order.Result, error) {
		got = req
		return &order.Result{Job: &order.PrintJob{ID: "J1", Raw: []byte(`{"id":"J1","status":{"name":"CREATED"}}`)}}, nil
	}))

	w := serve(h, http.MethodPost, `{"images":["x"],"customer":{"email":"a@b.co"},"paypal_order_id":"P1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Order processed successfully","lulu_job":{"id":"J1","status":{"name":"CREATED"}}}`, w.Body.String())
	assert.Equal(t, "P1", got.PaymentOrderID)
}

func TestHandler_Replayed(t *testing.T) {
	h := New(Config{}, placerFunc(func(context.Context, order.Request) (*order.Result, error) {
		return &order.Result{Job: &order.PrintJob{ID: "J1", Raw: []byte(`{"id":"J1"}`)}, Replayed: true}, nil
	}))

	w := serve(h, http.MethodPost, `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Order already processed","lulu_job":{"id":"J1"}}`, w.Body.String())
}

func TestMapOrderError(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "MissingImages",
			err:    &order.ValidationError{Field: "images", Reason: order.ReasonRequired},
			status: http.StatusBadRequest,
			msg:    msgMissingFields,
		},
		{
			name:   "MissingPaymentID",
			err:    &order.ValidationError{Field: "paypal_order_id", Reason: order.ReasonRequired},
			status: http.StatusBadRequest,
			msg:    msgMissingFields,
		},
		{
			name:   "BadEmail",
			err:    &order.ValidationError{Field: "customer.email", Reason: "not a valid address"},
			status: http.StatusBadRequest,
			msg:    "customer.email: not a valid address",
		},
		{
			name:   "NotPaid",
			err:    errors.Wrap(order.ErrPaymentNotCompleted, "status APPROVED"),
			status: http.StatusPaymentRequired,
			msg:    msgNotPaid,
		},
		{
			name:   "InProgress",
			err:    &order.StageError{Stage: order.StageReserve, Err: order.ErrAlreadyProcessing},
			status: http.StatusConflict,
			msg:    msgInProgress,
		},
		{
			name:   "PaymentAuth",
			err:    &order.StageError{Stage: order.StagePayment, Err: errors.Wrap(order.ErrAuth, "PayPal token endpoint returned 401")},
			status: http.StatusInternalServerError,
			msg:    "verify payment: provider rejected credentials",
		},
		{
			name:   "Configuration",
			err:    &order.StageError{Stage: order.StageSubmit, Err: errors.Wrap(order.ErrConfiguration, "Lulu client key and secret must be set")},
			status: http.StatusInternalServerError,
			msg:    "submit print job: service is not configured for this step",
		},
		{
			name:   "UploadTargetMissing",
			err:    &order.StageError{Stage: order.StageSubmit, Err: order.ErrUploadTargetMissing},
			status: http.StatusInternalServerError,
			msg:    "submit print job: " + order.ErrUploadTargetMissing.Error(),
		},
		{
			name:   "UploadStatus",
			err:    &order.StageError{Stage: order.StageSubmit, Err: &order.UploadError{StatusCode: 403}},
			status: http.StatusInternalServerError,
			msg:    "submit print job: upload document: unexpected status 403",
		},
		{
			name:   "UploadTransport",
			err:    &order.StageError{Stage: order.StageSubmit, Err: &order.UploadError{Err: errors.New("dial tcp: refused")}},
			status: http.StatusInternalServerError,
			msg:    "submit print job: upload document: transport failure",
		},
		{
			name:   "ImageFetch",
			err:    &order.StageError{Stage: order.StageAssemble, Err: &order.ImageFetchError{Index: 2, URL: "https://img.example/3.png", StatusCode: 404}},
			status: http.StatusInternalServerError,
			msg:    "assemble document: image 2: fetch https://img.example/3.png: unexpected status 404",
		},
		{
			name:   "Unknown",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			msg:    "internal error",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := mapOrderError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
