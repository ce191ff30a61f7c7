package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/gateway"
)

// HandleBoldWebhook receives gateway payment notifications. The signature is
// an HMAC-SHA256 of the raw body; it is verified before anything is parsed or
// mutated. A bad signature is a hard 401 so the gateway knows the delivery
// will never succeed; business failures are 4xx so it retries later deliveries
// only where that can help.
func HandleBoldWebhook(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "HandleBoldWebhook")
	defer span.End()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	signature := c.GetHeader(gateway.SignatureHeader)
	if !Gateway.VerifySignature(body, signature) {
		span.SetError("invalid webhook signature", "")
		respondError(c, fmt.Errorf("%w: webhook body does not match %s", billing.ErrSignature, gateway.SignatureHeader))
		return
	}

	var payload gateway.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		return
	}
	span.SetAttributes(map[string]interface{}{
		"event":       payload.Event,
		"transaction": payload.Transaction.ID,
		"reference":   payload.Transaction.Reference,
	})

	if err := Webhooks.Process(payload); err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
