package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"factura/gateway"
	"factura/models"
)

func webhookRouter() *gin.Engine {
	r := gin.Default()
	r.POST("/webhooks/bold", HandleBoldWebhook)
	return r
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/webhooks/bold", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(gateway.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpointAcceptsSignedPayload(t *testing.T) {
	db := setupTestEnv(t)
	r := webhookRouter()

	tenant := seedActiveTenant(t, db, "acme")
	invoice := models.Invoice{
		TenantID:         tenant.ID,
		InvoiceNumber:    "INV-202406-0001",
		Amount:           100000,
		Total:            119000,
		Currency:         "COP",
		Status:           models.InvoicePending,
		DueDate:          time.Now().AddDate(0, 0, 30),
		PeriodStart:      time.Now(),
		PeriodEnd:        time.Now().AddDate(0, 1, 0),
		PaymentReference: "ref-123",
	}
	assert.NoError(t, db.Create(&invoice).Error)

	body, _ := json.Marshal(gateway.WebhookPayload{
		Event: "payment.succeeded",
		Transaction: gateway.WebhookTransaction{
			ID:            "txn-1",
			Reference:     "ref-123",
			Amount:        119000,
			Currency:      "COP",
			Status:        "approved",
			PaymentMethod: "PSE",
		},
	})

	w := postWebhook(r, body, gateway.Sign("test-webhook-secret", body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)

	var payment models.Payment
	assert.NoError(t, db.Where("gateway_transaction_id = ?", "txn-1").First(&payment).Error)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	var reloaded models.Invoice
	assert.NoError(t, db.First(&reloaded, invoice.ID).Error)
	assert.Equal(t, models.InvoicePaid, reloaded.Status)

	// the gateway redelivers; the endpoint stays green and writes nothing new
	w = postWebhook(r, body, gateway.Sign("test-webhook-secret", body))
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	assert.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	db := setupTestEnv(t)
	r := webhookRouter()

	body := []byte(`{"event":"payment.succeeded","transaction":{"id":"txn-1","reference":"ref-123","amount":119000}}`)

	w := postWebhook(r, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(r, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(r, body, gateway.Sign("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var count int64
	assert.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookEndpointRejectsMalformedPayload(t *testing.T) {
	setupTestEnv(t)
	r := webhookRouter()

	body := []byte(`{not json`)
	w := postWebhook(r, body, gateway.Sign("test-webhook-secret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookEndpointUnknownReference(t *testing.T) {
	setupTestEnv(t)
	r := webhookRouter()

	body, _ := json.Marshal(gateway.WebhookPayload{
		Event: "payment.succeeded",
		Transaction: gateway.WebhookTransaction{
			ID: "txn-x", Reference: "no-such-ref", Amount: 1000,
		},
	})
	w := postWebhook(r, body, gateway.Sign("test-webhook-secret", body))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookEndpointAmountMismatch(t *testing.T) {
	db := setupTestEnv(t)
	r := webhookRouter()

	tenant := seedActiveTenant(t, db, "acme")
	invoice := models.Invoice{
		TenantID:         tenant.ID,
		InvoiceNumber:    "INV-202406-0002",
		Amount:           100000,
		Total:            119000,
		Currency:         "COP",
		Status:           models.InvoicePending,
		DueDate:          time.Now().AddDate(0, 0, 30),
		PeriodStart:      time.Now(),
		PeriodEnd:        time.Now().AddDate(0, 1, 0),
		PaymentReference: "ref-456",
	}
	assert.NoError(t, db.Create(&invoice).Error)

	body, _ := json.Marshal(gateway.WebhookPayload{
		Event: "payment.succeeded",
		Transaction: gateway.WebhookTransaction{
			ID: "txn-2", Reference: "ref-456", Amount: 50000,
		},
	})
	w := postWebhook(r, body, gateway.Sign("test-webhook-secret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var reloaded models.Invoice
	assert.NoError(t, db.First(&reloaded, invoice.ID).Error)
	assert.Equal(t, models.InvoicePending, reloaded.Status)
}
