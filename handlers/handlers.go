package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/config"
	"factura/database"
	"factura/gateway"
	"factura/mail"
)

// Package-level services, wired once at startup (and per-test) against
// database.DB.
var (
	Cfg        config.Billing
	TaxConfigs *billing.TaxConfigService
	Invoices   *billing.InvoiceService
	Payments   *billing.PaymentService
	Reminders  *billing.ReminderService
	Lifecycle  *billing.LifecycleService
	Billing    *billing.BillingService
	Webhooks   *billing.WebhookService
	History    *billing.HistoryService
	Gateway    *gateway.Client
)

// Configure builds the service graph. The gateway client may be swapped for a
// test double through the billing.PaymentLinker parameter.
func Configure(cfg config.Billing, mailer mail.Mailer, links billing.PaymentLinker) {
	db := database.DB
	dispatcher := billing.NewDispatcher(mailer)

	Cfg = cfg
	TaxConfigs = billing.NewTaxConfigService(db)
	Reminders = billing.NewReminderService(db, cfg, mailer)
	Invoices = billing.NewInvoiceService(db, cfg, dispatcher, Reminders)
	Payments = billing.NewPaymentService(db, cfg, dispatcher)
	Lifecycle = billing.NewLifecycleService(db, cfg, dispatcher)
	Webhooks = billing.NewWebhookService(db, cfg, dispatcher)
	History = billing.NewHistoryService(db)

	if links == nil {
		Gateway = gateway.NewClient(cfg.Gateway)
		links = Gateway
	}
	Billing = billing.NewBillingService(db, cfg, Invoices, links)
}

// respondError maps the billing error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, billing.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, billing.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, billing.ErrSignature):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
