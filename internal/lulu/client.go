// Package lulu places print jobs with the Lulu Print API.
package lulu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/colormuse/print-api/internal/domain/order"
)

// Default endpoints and line item settings.
const (
	DefaultAuthURL   = "https://auth.lulu.com/oauth/token"
	DefaultAPIURL    = "https://api.lulu.com"
	DefaultTitle     = "Custom Coloring Book"
	DefaultFormat    = "US_TRADE"
	DefaultCoverType = "PAPERBACK"
)

const maxResponseBytes = 1 << 20

var _ order.PrintSubmitter = (*Client)(nil)

// Config holds Lulu credentials and the line item describing the book.
type Config struct {
	AuthURL       string
	APIURL        string
	ClientKey     string
	ClientSecret  string
	Title         string
	Format        string
	CoverType     string
	ShippingLevel string
	Quantity      int
}

// Client creates print jobs and uploads interior documents.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates a Lulu client, filling unset settings with defaults.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.CoverType == "" {
		cfg.CoverType = DefaultCoverType
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	return &Client{http: httpClient, cfg: cfg}
}

// SubmitPrintJob creates a job for doc shipped to c, then uploads doc to the
// interior upload target named in the job response. Neither call is retried.
func (c *Client) SubmitPrintJob(ctx context.Context, doc *order.Document, cust order.Customer) (*order.PrintJob, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	raw, created, err := c.createJob(ctx, token, doc, cust)
	if err != nil {
		return nil, err
	}
	job := &order.PrintJob{ID: jobID(raw), Raw: raw}

	uploadURL, ok := created.interiorUploadURL()
	if !ok {
		zctx.From(ctx).Error("Print job has no interior upload target", zap.String("job_id", job.ID))
		return nil, &order.IncompleteJobError{JobID: job.ID, Err: order.ErrUploadTargetMissing}
	}
	if err := c.upload(ctx, uploadURL, doc.Data); err != nil {
		return nil, &order.IncompleteJobError{JobID: job.ID, Err: err}
	}
	return job, nil
}

func (c *Client) createJob(
	ctx context.Context,
	token *oauth2.Token,
	doc *order.Document,
	cust order.Customer,
) ([]byte, createJobResponse, error) {
	var created createJobResponse

	payload, err := json.Marshal(createJobRequest{
		ContactEmail:    cust.Email,
		ShippingAddress: addressOf(cust),
		ShippingLevel:   c.cfg.ShippingLevel,
		LineItems: []lineItem{{
			Quantity: c.cfg.Quantity,
			Title:    c.cfg.Title,
			Cover:    fileRef{URL: "upload"},
			Book: book{
				URL:       "upload",
				Format:    c.cfg.Format,
				CoverType: c.cfg.CoverType,
				PageCount: doc.Pages,
			},
		}},
	})
	if err != nil {
		return nil, created, errors.Wrap(err, "encode print job")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/print-jobs/", bytes.NewReader(payload))
	if err != nil {
		return nil, created, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, created, errors.Wrap(err, "create print job")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, created, errors.Wrap(err, "read print job")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zctx.From(ctx).Warn("Print job creation rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(raw, 1024)),
		)
		return nil, created, errors.Errorf("create print job: unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, created, errors.Wrap(err, "decode print job")
	}
	return raw, created, nil
}

func (c *Client) upload(ctx context.Context, target string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return &order.UploadError{Err: err}
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		// The upload URL is pre-signed; keep it out of the error text.
		var uErr *url.Error
		if errors.As(err, &uErr) {
			err = uErr.Err
		}
		return &order.UploadError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &order.UploadError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	if c.cfg.ClientKey == "" || c.cfg.ClientSecret == "" {
		return nil, errors.Wrap(order.ErrConfiguration, "Lulu client key and secret must be set")
	}

	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientKey,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return nil, errors.Wrapf(order.ErrAuth, "Lulu token endpoint returned %d", rErr.Response.StatusCode)
		}
		return nil, errors.Wrap(err, "fetch Lulu token")
	}
	return token, nil
}

// jobID extracts the job identifier, which may be a JSON string or number.
func jobID(raw []byte) string {
	var v struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || len(v.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.ID, &s); err == nil {
		return s
	}
	return string(v.ID)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
