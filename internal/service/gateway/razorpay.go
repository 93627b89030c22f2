package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/seowallet/internal/logger"
)

const DefaultURL = "https://api.razorpay.com"

const (
	CodeRetryAfter = "retry-after"
	CodeNotFound   = "not-found"
	CodeUnknown    = "unknown"
)

// Payment statuses reported by the gateway
const (
	PaymentCaptured   = "captured"
	PaymentAuthorized = "authorized"
	PaymentFailed     = "failed"
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Payment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture bool   `json:"payment_capture"`
}

// Client of the Razorpay REST API
type Client struct {
	URL       string
	KeyID     string
	KeySecret string

	client *http.Client
	logger logger.Logger
}

func NewClient(url string, keyID string, keySecret string, l logger.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}

	return &Client{
		URL:       strings.TrimSuffix(url, "/"),
		KeyID:     keyID,
		KeySecret: keySecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    l,
	}
}

// Create order for amount in minor units
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency string, receipt string) (Order, error) {
	var order Order

	body, err := json.Marshal(createOrderRequest{Amount: amount, Currency: currency, Receipt: receipt, PaymentCapture: true})
	if err != nil {
		return order, newError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(body))
	if err != nil {
		return order, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if err := c.checkStatus(resp, "create order"); err != nil {
		return order, err
	}

	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return order, newError(CodeUnknown, 0, fmt.Errorf("failed to decode order: %w", err))
	}

	c.logger.Debug("Gateway order created", "order_id", order.ID, "amount", order.Amount, "receipt", order.Receipt)
	return order, nil
}

// Payments made against the order
func (c *Client) OrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID+"/payments", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if err := c.checkStatus(resp, "order payments"); err != nil {
		return nil, err
	}

	var list struct {
		Items []Payment `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, newError(CodeUnknown, 0, fmt.Errorf("failed to decode payments: %w", err))
	}

	return list.Items, nil
}

// Signature the checkout returns for a successful payment
func (c *Client) Sign(orderID string, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(c.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID)) // nolint:errcheck
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) VerifySignature(orderID string, paymentID string, signature string) bool {
	expected := c.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) do(ctx context.Context, method string, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, body)
	if err != nil {
		return nil, newError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}

	return resp, nil
}

func (c *Client) checkStatus(resp *http.Response, op string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return c.tooManyRequests(resp)
	case http.StatusNotFound:
		return newError(CodeNotFound, 0, fmt.Errorf("%s: not found", op))
	default:
		c.logger.Warn("Gateway request failed", "op", op, "status_code", resp.StatusCode)
		return newError(CodeUnknown, 0, fmt.Errorf("%s: unexpected status code %d", op, resp.StatusCode))
	}
}

func (c *Client) tooManyRequests(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default to 60 seconds if parsing fails
	}

	c.logger.Warn("Gateway throttled", "retry_after", retryAfter)
	return newError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}
