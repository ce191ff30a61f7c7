// Package gateway is the outbound client for Bold Colombia, the payment
// gateway behind hosted payment links and webhook notifications.
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
	"time"

	log "github.com/sirupsen/logrus"

	"factura/config"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Bold-Signature"

type PaymentLinkRequest struct {
	Amount         float64
	Currency       string
	Description    string
	Reference      string
	CustomerEmail  string
	CustomerName   string
	RedirectURL    string
	ExpirationDate *time.Time
}

type PaymentLink struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Reference string    `json:"reference"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type TransactionStatus struct {
	ID            string     `json:"id"`
	Reference     string     `json:"reference"`
	Amount        float64    `json:"amount"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at"`
}

// WebhookPayload is the inbound notification contract.
type WebhookPayload struct {
	Event       string             `json:"event"`
	Transaction WebhookTransaction `json:"transaction"`
	Customer    WebhookCustomer    `json:"customer"`
}

type WebhookTransaction struct {
	ID            string  `json:"id"`
	Reference     string  `json:"reference"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"paymentMethod"`
	CreatedAt     string  `json:"createdAt"`
	PaidAt        string  `json:"paidAt,omitempty"`
}

type WebhookCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Client struct {
	http          *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
	successURL    string
}

func NewClient(cfg config.Gateway) *Client {
	return &Client{
		http:          &http.Client{Timeout: 30 * time.Second},
		baseURL:       cfg.APIURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "x-api-key "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreatePaymentLink creates a payment intent and returns the checkout link.
// This call is NOT retried: a duplicate intent means a duplicate link the
// customer could pay twice. Callers check for an existing link first.
func (c *Client) CreatePaymentLink(ctx context.Context, in PaymentLinkRequest) (*PaymentLink, error) {
	callback := in.RedirectURL
	if callback == "" {
		callback = c.successURL
	}

	payload := map[string]any{
		"reference_id": in.Reference,
		"amount": map[string]any{
			"currency":     in.Currency,
			"total_amount": in.Amount,
		},
		"description":  in.Description,
		"callback_url": callback,
		"customer": map[string]any{
			"name":  in.CustomerName,
			"email": in.CustomerEmail,
		},
	}
	if in.ExpirationDate != nil {
		payload["expiration_date"] = in.ExpirationDate.Format(time.RFC3339)
	}

	var resp struct {
		ReferenceID  string `json:"reference_id"`
		Status       string `json:"status"`
		CreationDate string `json:"creation_date"`
	}
	if err := c.do(ctx, http.MethodPost, "/payment-intent", payload, &resp); err != nil {
		return nil, err
	}

	createdAt := time.Now()
	if t, err := time.Parse(time.RFC3339, resp.CreationDate); err == nil {
		createdAt = t
	}
	status := resp.Status
	if status == "" {
		status = "ACTIVE"
	}

	link := &PaymentLink{
		ID:        resp.ReferenceID,
		URL:       "https://checkout.bold.co/payment/" + resp.ReferenceID,
		Reference: in.Reference,
		Amount:    in.Amount,
		Status:    status,
		CreatedAt: createdAt,
	}
	log.WithFields(log.Fields{"reference": in.Reference, "url": link.URL}).Info("payment link created")
	return link, nil
}

// GetPaymentStatus queries a transaction. The call is read-only and therefore
// safe to retry with backoff.
func (c *Client) GetPaymentStatus(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var resp struct {
			ID            string  `json:"id"`
			Reference     string  `json:"reference"`
			Amount        float64 `json:"amount"`
			Status        string  `json:"status"`
			PaymentMethod string  `json:"paymentMethod"`
			CreatedAt     string  `json:"createdAt"`
			PaidAt        string  `json:"paidAt"`
		}
		if lastErr = c.do(ctx, http.MethodGet, "/transactions/"+transactionID, nil, &resp); lastErr != nil {
			continue
		}

		status := &TransactionStatus{
			ID:            resp.ID,
			Reference:     resp.Reference,
			Amount:        resp.Amount,
			Status:        resp.Status,
			PaymentMethod: resp.PaymentMethod,
		}
		if t, err := time.Parse(time.RFC3339, resp.CreatedAt); err == nil {
			status.CreatedAt = t
		}
		if resp.PaidAt != "" {
			if t, err := time.Parse(time.RFC3339, resp.PaidAt); err == nil {
				status.PaidAt = &t
			}
		}
		return status, nil
	}
	return nil, fmt.Errorf("payment status query failed after retries: %w", lastErr)
}

func (c *Client) CancelPaymentLink(ctx context.Context, paymentLinkID string) error {
	return c.do(ctx, http.MethodDelete, "/payment-links/"+paymentLinkID, nil, nil)
}

// VerifySignature checks the webhook signature: hex HMAC-SHA256 of the raw
// body under the shared secret, compared in constant time.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(c.webhookSecret, body, signature)
}

func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a payload. Used by tests and outbound
// verification tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
