// Package gateway provides a client for the external payment gateway used
// for card payments (box purchases and shipping fees).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// PaymentStatus values reported by the gateway.
const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Client encapsulates HTTP interaction with the payment gateway.
type Client struct {
	baseURL    string
	clientID   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client for the given base address. Requests
// are retried on transient network failures.
func NewClient(baseURL, clientID, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

// NewOrderNo generates a unique gateway order number for one payment attempt.
func NewOrderNo() string {
	return "order_" + uuid.NewString()
}

// PaymentRequest describes one payment to initiate at the gateway.
type PaymentRequest struct {
	OrderNo     string `json:"order_no"`
	UserID      int64  `json:"user_id,string"`
	UserName    string `json:"user_name"`
	Amount      int64  `json:"amount"`
	ProductName string `json:"product_name"`
	ReturnURL   string `json:"return_url,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// PaymentSession is the gateway's answer to a payment request: the URL the
// user must be redirected to, keyed by our order number.
type PaymentSession struct {
	OrderNo    string `json:"orderNo"`
	PaymentURL string `json:"paymentUrl"`
}

type paymentResponse struct {
	OnlineURL string `json:"online_url"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// RequestPayment initiates a card payment and returns the redirect session.
func (c *Client) RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("gateway client not configured")
	}

	payload := struct {
		PaymentRequest
		ClientID string `json:"client_id"`
		PgCode   string `json:"pgcode"`
	}{
		PaymentRequest: req,
		ClientID:       c.clientID,
		PgCode:         "creditcard",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1.0/payments/request", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "PLKEY "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &PaymentSession{OrderNo: req.OrderNo, PaymentURL: result.OnlineURL}, nil
}

// GetPaymentStatus reports the gateway-side state of a payment, used by the
// reconciler for orders whose callback never arrived.
func (c *Client) GetPaymentStatus(ctx context.Context, orderNo string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("gateway client not configured")
	}

	url := fmt.Sprintf("%s/v1.0/payments/%s", c.baseURL, orderNo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "PLKEY "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return StatusPending, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.Status, nil
}

// CallbackPayload is the body the gateway posts back after a payment attempt.
type CallbackPayload struct {
	ClientID      string `json:"client_id"`
	OrderNo       string `json:"order_no"`
	PaymentResult string `json:"payment_result"`
	UserID        int64  `json:"user_id,string"`
	Amount        int64  `json:"amount"`
	CustomData    string `json:"custom_parameter,omitempty"`
}
