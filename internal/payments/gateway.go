// Package payments reconciles asynchronous payment-gateway notifications
// into registration status transitions.
package payments

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/simkas/backend/config"
)

const (
	sandboxBaseURL    = "https://api.sandbox.midtrans.com"
	productionBaseURL = "https://api.midtrans.com"
)

var (
	// ErrUnverified is returned when the gateway does not recognize the notification.
	ErrUnverified = errors.New("notification could not be verified")
	// ErrGatewayUnavailable is returned when the verification call itself failed.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Notification is the gateway's transaction payload, both as delivered to the
// webhook and as returned by the status API.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// Gateway verifies notifications against the payment gateway.
type Gateway interface {
	// CheckStatus re-fetches the authoritative transaction state for an order.
	CheckStatus(ctx context.Context, orderID string) (*Notification, error)
	// ValidSignature checks the notification's SHA-512 signature MAC.
	ValidSignature(n *Notification) bool
}

// Client is the HTTP gateway client. The sandbox/production flag selects the
// verification endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serverKey  string
	logger     *zap.Logger
}

// NewClient creates a gateway client from config.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := sandboxBaseURL
	if cfg.Production {
		baseURL = productionBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		serverKey:  cfg.ServerKey,
		logger:     logger,
	}
}

// CheckStatus calls GET /v2/{orderID}/status with server-key basic auth.
// A 404 means the gateway never saw this order: the notification is forged
// or stale and must not be trusted.
func (c *Client) CheckStatus(ctx context.Context, orderID string) (*Notification, error) {
	url := fmt.Sprintf("%s/v2/%s/status", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnverified
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: server key rejected", ErrGatewayUnavailable)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var n Notification
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", ErrGatewayUnavailable, err)
	}
	return &n, nil
}

// ValidSignature checks signature_key == SHA512(order_id + status_code + gross_amount + serverKey).
func (c *Client) ValidSignature(n *Notification) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + c.serverKey))
	return hex.EncodeToString(sum[:]) == n.SignatureKey
}
