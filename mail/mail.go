package mail

import (
	log "github.com/sirupsen/logrus"

	"factura/models"
)

// Mailer is the outbound notification surface of the billing core. All sends
// are best-effort: callers log failures and never let them roll back a
// financial mutation.
type Mailer interface {
	SendInvoiceEmail(tenant *models.Tenant, invoice *models.Invoice) error
	SendPaymentReminderEmail(tenant *models.Tenant, invoice *models.Invoice, daysBeforeDue int) error
	SendTenantSuspendedEmail(tenant *models.Tenant, invoice *models.Invoice) error
	SendTenantActivatedEmail(tenant *models.Tenant, payment *models.Payment) error
	SendPaymentConfirmationEmail(tenant *models.Tenant, payment *models.Payment, invoice *models.Invoice) error
}

// LogMailer records the intent of every send without delivering anything.
// Real delivery (templates, SMTP) lives outside this service.
type LogMailer struct{}

func (LogMailer) SendInvoiceEmail(tenant *models.Tenant, invoice *models.Invoice) error {
	log.WithFields(log.Fields{
		"tenant":  tenant.Slug,
		"to":      tenant.ContactEmail,
		"invoice": invoice.InvoiceNumber,
		"total":   invoice.Total,
	}).Info("mail: invoice issued")
	return nil
}

func (LogMailer) SendPaymentReminderEmail(tenant *models.Tenant, invoice *models.Invoice, daysBeforeDue int) error {
	log.WithFields(log.Fields{
		"tenant":          tenant.Slug,
		"to":              tenant.ContactEmail,
		"invoice":         invoice.InvoiceNumber,
		"days_before_due": daysBeforeDue,
	}).Info("mail: payment reminder")
	return nil
}

func (LogMailer) SendTenantSuspendedEmail(tenant *models.Tenant, invoice *models.Invoice) error {
	log.WithFields(log.Fields{
		"tenant":  tenant.Slug,
		"to":      tenant.ContactEmail,
		"invoice": invoice.InvoiceNumber,
	}).Info("mail: tenant suspended")
	return nil
}

func (LogMailer) SendTenantActivatedEmail(tenant *models.Tenant, payment *models.Payment) error {
	log.WithFields(log.Fields{
		"tenant":  tenant.Slug,
		"to":      tenant.ContactEmail,
		"payment": payment.ID,
	}).Info("mail: tenant reactivated")
	return nil
}

func (LogMailer) SendPaymentConfirmationEmail(tenant *models.Tenant, payment *models.Payment, invoice *models.Invoice) error {
	fields := log.Fields{
		"tenant":  tenant.Slug,
		"to":      tenant.ContactEmail,
		"payment": payment.ID,
		"amount":  payment.Amount,
	}
	if invoice != nil {
		fields["invoice"] = invoice.InvoiceNumber
	}
	log.WithFields(fields).Info("mail: payment confirmation")
	return nil
}
