package lulu

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colormuse/print-api/internal/domain/order"
)

type stubLulu struct {
	t *testing.T

	// jobResponse renders the job creation answer given the server URL.
	jobResponse  func(base string) string
	jobStatus    int
	uploadStatus int

	mu          sync.Mutex
	tokenCalls  int
	jobCalls    int
	uploadCalls int
	lastJob     createJobRequest
	uploaded    []byte
	uploadType  string
	base        string
}

func (s *stubLulu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/auth/token":
		s.tokenCalls++
		if r.PostFormValue("client_id") != "key" || r.PostFormValue("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"lulu-tok","token_type":"Bearer","expires_in":3600}`))

	case "/print-jobs/":
		s.jobCalls++
		assert.Equal(s.t, http.MethodPost, r.Method)
		assert.Equal(s.t, "Bearer lulu-tok", r.Header.Get("Authorization"))
		assert.NoError(s.t, json.NewDecoder(r.Body).Decode(&s.lastJob))
		if s.jobStatus != 0 {
			w.WriteHeader(s.jobStatus)
			_, _ = w.Write([]byte(`{"detail":"secret internal detail"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(s.jobResponse(s.base)))

	case "/upload/interior":
		s.uploadCalls++
		assert.Equal(s.t, http.MethodPut, r.Method)
		s.uploadType = r.Header.Get("Content-Type")
		s.uploaded, _ = io.ReadAll(r.Body)
		if s.uploadStatus != 0 {
			w.WriteHeader(s.uploadStatus)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		http.NotFound(w, r)
	}
}

func withInterior(base string) string {
	return `{"id":"J1","status":{"name":"CREATED"},"files":[` +
		`{"type":"cover","upload_url":"` + base + `/upload/cover"},` +
		`{"type":"book","upload_url":"` + base + `/upload/interior"}]}`
}

func newStub(t *testing.T, cfg Config) (*stubLulu, *Client) {
	t.Helper()
	stub := &stubLulu{t: t, jobResponse: withInterior}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	stub.base = srv.URL

	cfg.AuthURL = srv.URL + "/auth/token"
	cfg.APIURL = srv.URL
	return stub, NewClient(srv.Client(), cfg)
}

var (
	creds    = Config{ClientKey: "key", ClientSecret: "secret"}
	customer = order.Customer{
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Street1:     "1 Analytical Way",
		City:        "London",
		PostCode:    "N1 1AA",
		CountryCode: "GB",
	}
	testDoc = &order.Document{Data: []byte("%PDF-1.3 fake"), Pages: 25}
)

func TestSubmitPrintJob(t *testing.T) {
	stub, c := newStub(t, creds)

	job, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
	require.NoError(t, err)

	assert.Equal(t, "J1", job.ID)
	assert.JSONEq(t, withInterior(stub.base), string(job.Raw))

	assert.Equal(t, 1, stub.tokenCalls)
	assert.Equal(t, 1, stub.jobCalls)
	assert.Equal(t, 1, stub.uploadCalls)
	assert.Equal(t, "application/pdf", stub.uploadType)
	assert.Equal(t, testDoc.Data, stub.uploaded)

	assert.Equal(t, "ada@example.com", stub.lastJob.ContactEmail)
	assert.Equal(t, "Ada Lovelace", stub.lastJob.ShippingAddress.Name)
	assert.Equal(t, "GB", stub.lastJob.ShippingAddress.CountryCode)
	require.Len(t, stub.lastJob.LineItems, 1)
	item := stub.lastJob.LineItems[0]
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, DefaultTitle, item.Title)
	assert.Equal(t, DefaultFormat, item.Book.Format)
	assert.Equal(t, DefaultCoverType, item.Book.CoverType)
	assert.Equal(t, 25, item.Book.PageCount, "page count is the real page count, not the byte size")
}

func TestSubmitPrintJob_NumericID(t *testing.T) {
	stub, c := newStub(t, creds)
	stub.jobResponse = func(base string) string {
		return `{"id":12345,"files":[{"type":"book","upload_url":"` + base + `/upload/interior"}]}`
	}

	job, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
	require.NoError(t, err)
	assert.Equal(t, "12345", job.ID)
}

func TestSubmitPrintJob_MissingUploadTarget(t *testing.T) {
	stub, c := newStub(t, creds)
	stub.jobResponse = func(base string) string {
		return `{"id":"J1","files":[{"type":"cover","upload_url":"` + base + `/upload/cover"}]}`
	}

	_, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
	require.ErrorIs(t, err, order.ErrUploadTargetMissing)
	var incErr *order.IncompleteJobError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, "J1", incErr.JobID)
	assert.Zero(t, stub.uploadCalls)
}

func TestSubmitPrintJob_UploadRejected(t *testing.T) {
	stub, c := newStub(t, creds)
	stub.uploadStatus = http.StatusForbidden

	_, err := c.SubmitPrintJob(context.Background(), testDoc, customer)

	var upErr *order.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
	var incErr *order.IncompleteJobError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, "J1", incErr.JobID)
	assert.NotContains(t, err.Error(), "/upload/interior")
	assert.Equal(t, 1, stub.uploadCalls)
}

func TestSubmitPrintJob_CreateRejected(t *testing.T) {
	stub, c := newStub(t, creds)
	stub.jobStatus = http.StatusBadRequest

	_, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret internal detail")
	assert.Equal(t, 1, stub.jobCalls, "job creation is not retried")
	assert.Zero(t, stub.uploadCalls)
}

func TestSubmitPrintJob_Credentials(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		stub, c := newStub(t, Config{ClientKey: "key"})

		_, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
		require.ErrorIs(t, err, order.ErrConfiguration)
		assert.Zero(t, stub.tokenCalls)
	})

	t.Run("rejected", func(t *testing.T) {
		stub, c := newStub(t, Config{ClientKey: "key", ClientSecret: "nope"})

		_, err := c.SubmitPrintJob(context.Background(), testDoc, customer)
		require.ErrorIs(t, err, order.ErrAuth)
		assert.Equal(t, 1, stub.tokenCalls)
		assert.Zero(t, stub.jobCalls)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil, Config{Quantity: -1})
	assert.Equal(t, DefaultAuthURL, c.cfg.AuthURL)
	assert.Equal(t, DefaultAPIURL, c.cfg.APIURL)
	assert.Equal(t, 1, c.cfg.Quantity)
}
