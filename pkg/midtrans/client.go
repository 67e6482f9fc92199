package midtrans

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvironmentURLs maps environment names to the Snap and Core API hosts
var EnvironmentURLs = map[string]struct {
	Snap string
	API  string
}{
	"sandbox":    {Snap: "https://app.sandbox.midtrans.com", API: "https://api.sandbox.midtrans.com"},
	"production": {Snap: "https://app.midtrans.com", API: "https://api.midtrans.com"},
}

var (
	// ErrNotConfigured is returned when no server key is set
	ErrNotConfigured = errors.New("payment gateway not configured: missing server key")

	// ErrTransactionNotFound means the gateway has no transaction for the order yet
	ErrTransactionNotFound = errors.New("transaction not found at gateway")

	// ErrInvalidSignature means a notification failed signature verification
	ErrInvalidSignature = errors.New("invalid notification signature")
)

// GatewayError is a non-success answer from the gateway
type GatewayError struct {
	HTTPStatus int
	StatusCode string
	Messages   []string
}

func (e *GatewayError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = "no message"
	}
	return fmt.Sprintf("midtrans returned http %d (status_code %s): %s", e.HTTPStatus, e.StatusCode, msg)
}

// Config holds the client settings
type Config struct {
	Environment string
	ServerKey   string
	FinishURL   string

	// Overrides for tests; empty means derive from Environment
	SnapBaseURL string
	APIBaseURL  string
}

// Client talks to Midtrans Snap (create) and the Core API (status, cancel)
type Client struct {
	serverKey string
	finishURL string
	snapURL   string
	apiURL    string
	http      *http.Client
	logger    *logrus.Logger
}

// NewClient creates a new Midtrans client
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	urls, ok := EnvironmentURLs[cfg.Environment]
	if !ok {
		urls = EnvironmentURLs["sandbox"]
	}
	snapURL := urls.Snap
	if cfg.SnapBaseURL != "" {
		snapURL = cfg.SnapBaseURL
	}
	apiURL := urls.API
	if cfg.APIBaseURL != "" {
		apiURL = cfg.APIBaseURL
	}

	return &Client{
		serverKey: cfg.ServerKey,
		finishURL: cfg.FinishURL,
		snapURL:   strings.TrimRight(snapURL, "/"),
		apiURL:    strings.TrimRight(apiURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ===== REQUEST / RESPONSE TYPES =====

// TransactionDetails identifies the order and its amount
type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

// CustomerDetails describes the payer
type CustomerDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ItemDetail is one line item. The sum of price*quantity must equal gross_amount.
type ItemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Expiry bounds how long the payment page accepts payment
type Expiry struct {
	Unit     string `json:"unit"` // "minute", "hour" or "day"
	Duration int    `json:"duration"`
}

// Callbacks redirects the customer after payment
type Callbacks struct {
	Finish string `json:"finish,omitempty"`
}

// SnapRequest is the body of a Snap create-transaction call
type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
	ItemDetails        []ItemDetail       `json:"item_details,omitempty"`
	Expiry             *Expiry            `json:"expiry,omitempty"`
	Callbacks          *Callbacks         `json:"callbacks,omitempty"`
}

// SnapResponse carries the Snap token and hosted payment page
type SnapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// TransactionStatus is returned by the status and cancel APIs and posted as notification
type TransactionStatus struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	SettlementTime    string `json:"settlement_time"`
	SignatureKey      string `json:"signature_key"`
}

// Notification is the HTTP notification body. It has the status shape.
type Notification = TransactionStatus

// Amount parses gross_amount ("150000.00") into whole rupiah
func (s *TransactionStatus) Amount() (int64, error) {
	f, err := strconv.ParseFloat(s.GrossAmount, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gross_amount %q: %w", s.GrossAmount, err)
	}
	return int64(math.Round(f)), nil
}

// ===== OPERATIONS =====

// IsConfigured returns true if the gateway has credentials
func (c *Client) IsConfigured() bool {
	return c.serverKey != ""
}

// CreateTransaction opens a Snap payment page for the order
func (c *Client) CreateTransaction(ctx context.Context, req *SnapRequest) (*SnapResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if req.Callbacks == nil && c.finishURL != "" {
		req.Callbacks = &Callbacks{Finish: c.finishURL}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     req.TransactionDetails.OrderID,
		"gross_amount": req.TransactionDetails.GrossAmount,
	}).Info("Creating Midtrans Snap transaction")

	status, respBody, err := c.do(ctx, http.MethodPost, c.snapURL+"/snap/v1/transactions", body)
	if err != nil {
		return nil, err
	}

	var snapResp SnapResponse
	if err := json.Unmarshal(respBody, &snapResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if status != http.StatusCreated && status != http.StatusOK {
		return nil, &GatewayError{HTTPStatus: status, StatusCode: strconv.Itoa(status), Messages: snapResp.ErrorMessages}
	}
	if snapResp.Token == "" || snapResp.RedirectURL == "" {
		return nil, &GatewayError{HTTPStatus: status, Messages: []string{"no token or redirect_url returned"}}
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     req.TransactionDetails.OrderID,
		"redirect_url": snapResp.RedirectURL,
	}).Info("Midtrans Snap transaction created")

	return &snapResp, nil
}

// GetStatus queries the current status of an order
func (c *Client) GetStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	return c.coreCall(ctx, http.MethodGet, orderID, "status")
}

// Cancel cancels a pending transaction
func (c *Client) Cancel(ctx context.Context, orderID string) (*TransactionStatus, error) {
	return c.coreCall(ctx, http.MethodPost, orderID, "cancel")
}

// coreCall handles the Core API convention of answering HTTP 200 with the real
// outcome in the body's status_code.
func (c *Client) coreCall(ctx context.Context, method, orderID, action string) (*TransactionStatus, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/v2/%s/%s", c.apiURL, url.PathEscape(orderID), action)
	status, respBody, err := c.do(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var result TransactionStatus
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":           orderID,
		"action":             action,
		"http_status":        status,
		"status_code":        result.StatusCode,
		"transaction_status": result.TransactionStatus,
	}).Debug("Midtrans core API response")

	if result.StatusCode == "404" || status == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if status >= 300 || !strings.HasPrefix(result.StatusCode, "2") {
		return nil, &GatewayError{HTTPStatus: status, StatusCode: result.StatusCode, Messages: []string{result.StatusMessage}}
	}

	return &result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.serverKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Error("Failed to call Midtrans")
		return 0, nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// ===== NOTIFICATIONS =====

// SignatureKey computes sha512(order_id + status_code + gross_amount + server_key)
func SignatureKey(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the signature_key of a notification
func (c *Client) VerifySignature(n *Notification) bool {
	if n.SignatureKey == "" || !c.IsConfigured() {
		return false
	}
	want := SignatureKey(n.OrderID, n.StatusCode, n.GrossAmount, c.serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}

// ParseNotification decodes and verifies a notification body. On a bad
// signature the decoded notification is returned with ErrInvalidSignature.
func (c *Client) ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("notification missing required fields")
	}
	if !c.VerifySignature(&n) {
		return &n, ErrInvalidSignature
	}
	return &n, nil
}
