package billing

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"factura/config"
	"factura/mail"
	"factura/models"
)

// PaymentService records money received, whether entered manually or
// reconciled from a gateway webhook, and applies the downstream invoice and
// tenant effects.
type PaymentService struct {
	db         *gorm.DB
	cfg        config.Billing
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewPaymentService(db *gorm.DB, cfg config.Billing, dispatcher *Dispatcher) *PaymentService {
	return &PaymentService{db: db, cfg: cfg, dispatcher: dispatcher, now: time.Now}
}

type CreatePaymentInput struct {
	TenantID      uint
	InvoiceID     *uint
	Amount        float64
	Currency      string
	PaymentMethod models.PaymentMethod
	PaymentDate   *time.Time
	Notes         string
	Actor         Actor
}

// Create records a manual payment. When it references an invoice, the invoice
// is marked paid and the tenant reactivated or extended, all in one
// transaction; confirmation emails go out after commit.
func (s *PaymentService) Create(in CreatePaymentInput) (*models.Payment, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Currency == "" {
		in.Currency = s.cfg.Currency
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.MethodTransfer
	}

	var payment *models.Payment
	var effects []Effect

	err := s.db.Transaction(func(tx *gorm.DB) error {
		effects = effects[:0]
		var tenant models.Tenant
		if err := tx.First(&tenant, in.TenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: tenant %d", ErrNotFound, in.TenantID)
			}
			return err
		}

		var invoice *models.Invoice
		if in.InvoiceID != nil {
			var inv models.Invoice
			err := tx.Where("id = ? AND tenant_id = ?", *in.InvoiceID, in.TenantID).First(&inv).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: invoice %d for tenant %d", ErrNotFound, *in.InvoiceID, in.TenantID)
			}
			if err != nil {
				return err
			}
			if inv.Status == models.InvoicePaid {
				return fmt.Errorf("%w: invoice %s is already paid", ErrConflict, inv.InvoiceNumber)
			}
			if inv.Status == models.InvoiceVoided {
				return fmt.Errorf("%w: invoice %s is voided", ErrConflict, inv.InvoiceNumber)
			}
			invoice = &inv
		}

		paidAt := s.now()
		if in.PaymentDate != nil {
			paidAt = *in.PaymentDate
		}

		payment = &models.Payment{
			TenantID:      in.TenantID,
			InvoiceID:     in.InvoiceID,
			Amount:        in.Amount,
			Currency:      in.Currency,
			Status:        models.PaymentCompleted,
			PaymentMethod: in.PaymentMethod,
			PaymentDate:   paidAt,
			Notes:         in.Notes,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		fx, err := settle(tx, payment, &tenant, invoice, in.Actor, s.now())
		if err != nil {
			return err
		}
		effects = append(effects, fx...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"payment": payment.ID,
		"tenant":  payment.TenantID,
		"amount":  payment.Amount,
	}).Info("payment recorded")

	s.dispatcher.Dispatch(effects)
	return payment, nil
}

// settle applies a completed payment: invoice → paid, tenant reactivated or
// extended, history appended. Returns the mail effects to run after commit.
func settle(tx *gorm.DB, payment *models.Payment, tenant *models.Tenant, invoice *models.Invoice, actor Actor, now time.Time) ([]Effect, error) {
	var effects []Effect

	if invoice != nil {
		if _, err := markInvoicePaid(tx, invoice.ID, payment.PaymentDate, actor); err != nil {
			return nil, err
		}
	}

	fx, err := applyPaymentToTenant(tx, tenant, payment, now)
	if err != nil {
		return nil, err
	}
	effects = append(effects, fx...)

	ten, pay, inv := *tenant, payment, invoice
	effects = append(effects, Effect{
		Name: "payment-confirmation-email",
		Run:  func(m mail.Mailer) error { return m.SendPaymentConfirmationEmail(&ten, pay, inv) },
	})
	return effects, nil
}

type PaymentFilters struct {
	TenantID  uint
	Status    models.PaymentStatus
	StartDate *time.Time
	EndDate   *time.Time
}

func (s *PaymentService) FindAll(filters PaymentFilters) ([]models.Payment, error) {
	q := s.db.Preload("Tenant").Preload("Invoice").Order("created_at DESC")
	if filters.TenantID != 0 {
		q = q.Where("tenant_id = ?", filters.TenantID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.StartDate != nil {
		q = q.Where("payment_date >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		q = q.Where("payment_date <= ?", *filters.EndDate)
	}
	var payments []models.Payment
	err := q.Find(&payments).Error
	return payments, err
}

func (s *PaymentService) FindOne(id uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.Preload("Tenant").Preload("Invoice").First(&payment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: payment %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentService) FindByTenant(tenantID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.Where("tenant_id = ?", tenantID).Preload("Invoice").
		Order("created_at DESC").Find(&payments).Error
	return payments, err
}
