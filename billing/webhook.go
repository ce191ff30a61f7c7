package billing

import (
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"factura/config"
	"factura/gateway"
	"factura/models"
)

// amountEpsilon is the tolerance when matching a gateway amount against an
// invoice total.
const amountEpsilon = 0.01

// WebhookService reconciles asynchronous gateway notifications with the
// internal invoice, payment and tenant state. Signature verification happens
// in the HTTP layer against the raw body; this service assumes an
// authenticated payload.
type WebhookService struct {
	db         *gorm.DB
	cfg        config.Billing
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewWebhookService(db *gorm.DB, cfg config.Billing, dispatcher *Dispatcher) *WebhookService {
	return &WebhookService{db: db, cfg: cfg, dispatcher: dispatcher, now: time.Now}
}

// Process dispatches a verified webhook by event type. payment.failed and
// payment.pending are observe-only: they resolve and log, but mutate nothing.
func (s *WebhookService) Process(payload gateway.WebhookPayload) error {
	logger := log.WithFields(log.Fields{
		"event":       payload.Event,
		"transaction": payload.Transaction.ID,
		"reference":   payload.Transaction.Reference,
	})

	switch payload.Event {
	case "payment.succeeded":
		return s.handlePaymentSucceeded(payload)
	case "payment.failed":
		logger.Warn("gateway reported failed payment")
		s.observe(payload.Transaction.Reference, logger)
		return nil
	case "payment.pending":
		logger.Info("gateway reported pending payment")
		s.observe(payload.Transaction.Reference, logger)
		return nil
	default:
		logger.Warn("unhandled webhook event")
		return nil
	}
}

func (s *WebhookService) observe(reference string, logger *log.Entry) {
	var invoice models.Invoice
	if err := s.db.Where("payment_reference = ?", reference).First(&invoice).Error; err != nil {
		logger.Warn("webhook references no known invoice")
		return
	}
	logger.WithField("invoice", invoice.InvoiceNumber).Info("no state change applied")
}

// handlePaymentSucceeded creates the payment, marks the invoice paid and
// reactivates or extends the tenant, atomically. Replays of the same gateway
// transaction id are detected inside the transaction and accepted without any
// new writes; a racing duplicate insert is stopped by the unique index on
// gateway_transaction_id, which rolls the whole transaction back.
func (s *WebhookService) handlePaymentSucceeded(payload gateway.WebhookPayload) error {
	txn := payload.Transaction

	var effects []Effect
	err := s.db.Transaction(func(tx *gorm.DB) error {
		effects = effects[:0]

		var invoice models.Invoice
		err := tx.Preload("Tenant").Where("payment_reference = ?", txn.Reference).First(&invoice).Error
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: invoice with reference %q", ErrNotFound, txn.Reference)
		}
		if err != nil {
			return err
		}

		if math.Abs(invoice.Total-txn.Amount) > amountEpsilon {
			return fmt.Errorf("%w: amount mismatch: invoice total %.2f, gateway reported %.2f",
				ErrValidation, invoice.Total, txn.Amount)
		}

		var existing models.Payment
		err = tx.Where("gateway_transaction_id = ?", txn.ID).First(&existing).Error
		if err == nil {
			log.WithFields(log.Fields{
				"transaction": txn.ID,
				"payment":     existing.ID,
			}).Info("duplicate webhook delivery ignored")
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		now := s.now()
		txnID := txn.ID
		payment := &models.Payment{
			TenantID:             invoice.TenantID,
			InvoiceID:            &invoice.ID,
			Amount:               txn.Amount,
			Currency:             invoice.Currency,
			Status:               models.PaymentCompleted,
			PaymentMethod:        mapPaymentMethod(txn.PaymentMethod),
			PaymentDate:          now,
			Notes:                fmt.Sprintf("Reconciled from gateway webhook - transaction %s", txn.ID),
			GatewayTransactionID: &txnID,
			GatewayPaymentMethod: txn.PaymentMethod,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		tenant := invoice.Tenant
		fx, err := settle(tx, payment, &tenant, &invoice, PlatformOperator(), now)
		if err != nil {
			return err
		}
		effects = append(effects, fx...)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatcher.Dispatch(effects)
	return nil
}

func mapPaymentMethod(gatewayMethod string) models.PaymentMethod {
	m := strings.ToLower(gatewayMethod)
	switch {
	case strings.Contains(m, "pse"):
		return models.MethodPSE
	case strings.Contains(m, "card") || strings.Contains(m, "tarjeta"):
		return models.MethodCard
	case strings.Contains(m, "transfer"):
		return models.MethodTransfer
	default:
		return models.MethodOther
	}
}
