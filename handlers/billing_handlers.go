package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/models"
)

// --- sweep triggers ---

func GenerateInvoices(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GenerateInvoices")
	defer span.End()

	result := Billing.GenerateMonthlyInvoices()
	span.SetAttributes(map[string]interface{}{
		"generated": result.Count,
		"errors":    len(result.Errors),
	})
	c.JSON(http.StatusOK, gin.H{"generated": result.Count, "errors": result.Errors})
}

func SuspendOverdue(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "SuspendOverdue")
	defer span.End()

	result := Lifecycle.SuspendOverdueTenants()
	span.SetAttributes(map[string]interface{}{
		"suspended": result.Count,
		"errors":    len(result.Errors),
	})
	c.JSON(http.StatusOK, gin.H{"suspended": result.Count, "errors": result.Errors})
}

func SuspendExpiredTrials(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "SuspendExpiredTrials")
	defer span.End()

	result := Lifecycle.SuspendExpiredFreeTrials()
	c.JSON(http.StatusOK, gin.H{"suspended": result.Count, "errors": result.Errors})
}

func SendReminders(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "SendReminders")
	defer span.End()

	result := Reminders.SendScheduled()
	c.JSON(http.StatusOK, gin.H{"sent": result.Count, "errors": result.Errors})
}

func CleanupReminders(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CleanupReminders")
	defer span.End()

	deleted, err := Reminders.CleanupOld()
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// --- read paths ---

func Dashboard(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "Dashboard")
	defer span.End()

	stats, err := Billing.GetDashboardStats()
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func GetBillingHistory(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GetBillingHistory")
	defer span.End()

	var tenantID uint
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
			return
		}
		tenantID = uint(id)
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := History.GetHistory(tenantID, limit)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func GetPendingReminders(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GetPendingReminders")
	defer span.End()

	var tenantID uint
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
			return
		}
		tenantID = uint(id)
	}

	reminders, err := Reminders.GetPending(tenantID)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminders)
}

// --- invoices ---

type CreateInvoiceRequest struct {
	TenantID        uint                 `json:"tenant_id" binding:"required"`
	TaxConfigID     *uint                `json:"tax_config_id"`
	TaxExempt       bool                 `json:"tax_exempt"`
	TaxExemptReason string               `json:"tax_exempt_reason"`
	Amount          float64              `json:"amount" binding:"required,gte=0"`
	Currency        string               `json:"currency"`
	DueDate         time.Time            `json:"due_date" binding:"required"`
	PeriodStart     time.Time            `json:"period_start" binding:"required"`
	PeriodEnd       time.Time            `json:"period_end" binding:"required"`
	Items           []models.InvoiceItem `json:"items"`
	Notes           string               `json:"notes"`
}

func CreateInvoice(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CreateInvoice")
	defer span.End()

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(map[string]interface{}{
		"tenant_id": req.TenantID,
		"amount":    req.Amount,
	})

	invoice, err := Invoices.Create(billing.CreateInvoiceInput{
		TenantID:        req.TenantID,
		TaxConfigID:     req.TaxConfigID,
		TaxExempt:       req.TaxExempt,
		TaxExemptReason: req.TaxExemptReason,
		Amount:          req.Amount,
		Currency:        req.Currency,
		DueDate:         req.DueDate,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		Items:           req.Items,
		Notes:           req.Notes,
		Actor:           actorFrom(c),
	})
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func ListInvoices(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "ListInvoices")
	defer span.End()

	filters := billing.InvoiceFilters{
		Status: models.InvoiceStatus(c.Query("status")),
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

	invoices, err := Invoices.FindAll(filters)
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func GetInvoice(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GetInvoice")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}
	span.SetAttributes(map[string]interface{}{"invoice_id": id})

	invoice, err := Invoices.FindOne(uint(id))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}

	actor := actorFrom(c)
	if tenantID, ok := actor.TenantID(); ok && invoice.TenantID != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invoice does not belong to the caller's tenant"})
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func MarkInvoicePaid(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "MarkInvoicePaid")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}

	invoice, err := Invoices.MarkAsPaid(uint(id), time.Time{}, actorFrom(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func CancelInvoice(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CancelInvoice")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}

	var req CancelInvoiceRequest
	_ = c.ShouldBindJSON(&req)

	invoice, err := Invoices.Cancel(uint(id), req.Reason, actorFrom(c))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func CreateInvoicePaymentLink(c *gin.Context) {
	ctx, span := Tracer.StartSpan(c.Request.Context(), "CreateInvoicePaymentLink")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice ID"})
		return
	}

	invoice, err := Billing.AttachPaymentLink(ctx, uint(id))
	if err != nil {
		span.SetError(err.Error(), "")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice_id":       invoice.ID,
		"payment_link_url": invoice.PaymentLinkURL,
		"reference":        invoice.PaymentReference,
	})
}
