// Package paypal verifies checkout orders against the PayPal Orders API.
package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/colormuse/print-api/internal/domain/order"
)

// Base URLs of the PayPal REST API.
const (
	LiveURL    = "https://api-m.paypal.com"
	SandboxURL = "https://api-m.sandbox.paypal.com"
)

var _ order.PaymentVerifier = (*Client)(nil)

// Config holds PayPal application credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client checks order status with a fresh client-credentials token per call.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates a PayPal client. An empty BaseURL selects LiveURL.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{http: httpClient, cfg: cfg}
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"purchase_units"`
}

// VerifyPayment fetches the order and reports its status. A non-200 answer
// from the Orders API yields an unverified payment rather than an error.
func (c *Client) VerifyPayment(ctx context.Context, orderID string) (order.Payment, error) {
	payment := order.Payment{OrderID: orderID}

	token, err := c.token(ctx)
	if err != nil {
		return payment, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/v2/checkout/orders/"+url.PathEscape(orderID), http.NoBody)
	if err != nil {
		return payment, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return payment, errors.Wrap(err, "get order")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		zctx.From(ctx).Warn("PayPal order verification failed",
			zap.String("order_id", orderID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return payment, nil
	}

	var data orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return payment, errors.Wrap(err, "decode order")
	}

	payment.Status = data.Status
	if len(data.PurchaseUnits) > 0 {
		amount := data.PurchaseUnits[0].Amount
		payment.Currency = amount.CurrencyCode
		if amount.Value != "" {
			v, err := decimal.NewFromString(amount.Value)
			if err != nil {
				return payment, errors.Wrap(err, "parse amount")
			}
			payment.Amount = v
		}
	}
	return payment, nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, errors.Wrap(order.ErrConfiguration, "PayPal client id and secret must be set")
	}

	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	token, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return nil, errors.Wrapf(order.ErrAuth, "PayPal token endpoint returned %d", rErr.Response.StatusCode)
		}
		return nil, errors.Wrap(err, "fetch PayPal token")
	}
	return token, nil
}
