package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/models"
)

type CreatePaymentRequest struct {
	TenantID      uint       `json:"tenant_id" binding:"required"`
	InvoiceID     *uint      `json:"invoice_id"`
	Amount        float64    `json:"amount" binding:"required,gt=0"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	PaymentDate   *time.Time `json:"payment_date"`
	Notes         string     `json:"notes"`
}

// CreatePayment records a manual payment (bank transfer, cash). It drives the
// same settlement path the gateway webhook does.
func CreatePayment(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CreatePayment")
	defer span.End()

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{
		"tenant_id": req.TenantID,
		"amount":    req.Amount,
	})

	payment, err := Payments.Create(billing.CreatePaymentInput{
		TenantID:      req.TenantID,
		InvoiceID:     req.InvoiceID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		PaymentDate:   req.PaymentDate,
		Notes:         req.Notes,
		Actor:         actorFrom(c),
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func ListPayments(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "ListPayments")
	defer span.End()

	filters := billing.PaymentFilters{
		Status: models.PaymentStatus(c.Query("status")),
	}
	actor := actorFrom(c)
	if tenantID, ok := actor.TenantID(); ok {
		filters.TenantID = tenantID
	} else if raw := c.Query("filter_tenant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
			return
		}
		filters.TenantID = uint(id)
	}

	payments, err := Payments.FindAll(filters)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func GetPayment(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GetPayment")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	payment, err := Payments.FindOne(uint(id))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	actor := actorFrom(c)
	if tenantID, ok := actor.TenantID(); ok && payment.TenantID != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Payment does not belong to the caller's tenant"})
		return
	}
	c.JSON(http.StatusOK, payment)
}
