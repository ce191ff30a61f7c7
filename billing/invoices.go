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

// InvoiceService owns invoice CRUD, the invoice state machine and invoice
// numbering.
type InvoiceService struct {
	db         *gorm.DB
	cfg        config.Billing
	dispatcher *Dispatcher
	reminders  *ReminderService
	now        func() time.Time
}

func NewInvoiceService(db *gorm.DB, cfg config.Billing, dispatcher *Dispatcher, reminders *ReminderService) *InvoiceService {
	return &InvoiceService{db: db, cfg: cfg, dispatcher: dispatcher, reminders: reminders, now: time.Now}
}

type CreateInvoiceInput struct {
	TenantID        uint
	TaxConfigID     *uint
	TaxExempt       bool
	TaxExemptReason string
	Amount          float64
	Currency        string
	DueDate         time.Time
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Items           []models.InvoiceItem
	Notes           string
	Actor           Actor
}

// Create persists a new pending invoice: resolves the tax config (explicit id,
// else the default, else no tax), computes tax and total, assigns the next
// invoice number, schedules payment reminders and appends a history entry, all
// in one transaction. The invoice email goes out after commit.
func (s *InvoiceService) Create(in CreateInvoiceInput) (*models.Invoice, error) {
	if in.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if in.TaxExempt && in.TaxExemptReason == "" {
		return nil, fmt.Errorf("%w: tax-exempt invoices require a reason", ErrValidation)
	}
	if in.DueDate.IsZero() || in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return nil, fmt.Errorf("%w: due date and period are required", ErrValidation)
	}
	if in.Currency == "" {
		in.Currency = s.cfg.Currency
	}

	var invoice *models.Invoice
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

		var taxCfg *models.TaxConfig
		var err error
		if !in.TaxExempt {
			if in.TaxConfigID != nil {
				taxCfg, err = findTaxConfig(tx, *in.TaxConfigID)
			} else {
				taxCfg, err = findDefaultTaxConfig(tx)
			}
			if err != nil {
				return err
			}
		}

		tax, total := 0.0, in.Amount
		var taxConfigID *uint
		if taxCfg != nil {
			res := CalculateTax(in.Amount, taxCfg)
			tax, total = res.Tax, res.Total
			taxConfigID = &taxCfg.ID
		}

		number, err := nextInvoiceNumber(tx, s.now())
		if err != nil {
			return err
		}

		invoice = &models.Invoice{
			TenantID:        in.TenantID,
			TaxConfigID:     taxConfigID,
			TaxExempt:       in.TaxExempt,
			TaxExemptReason: in.TaxExemptReason,
			InvoiceNumber:   number,
			Amount:          in.Amount,
			Tax:             tax,
			Total:           total,
			Currency:        in.Currency,
			Status:          models.InvoicePending,
			DueDate:         in.DueDate,
			PeriodStart:     in.PeriodStart,
			PeriodEnd:       in.PeriodEnd,
			Items:           in.Items,
			Notes:           in.Notes,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}

		if s.reminders != nil {
			if _, err := s.reminders.createForInvoice(tx, invoice); err != nil {
				return err
			}
		}

		if err := record(tx, in.TenantID, in.Actor, models.ActionInvoiceCreated,
			fmt.Sprintf("Invoice %s created for %s %.0f", number, invoice.Currency, invoice.Total),
			map[string]any{
				"invoiceId":     invoice.ID,
				"invoiceNumber": number,
				"amount":        invoice.Total,
				"dueDate":       invoice.DueDate,
			}); err != nil {
			return err
		}

		inv, ten := invoice, tenant
		effects = append(effects, Effect{
			Name: "invoice-email",
			Run:  func(m mail.Mailer) error { return m.SendInvoiceEmail(&ten, inv) },
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"invoice": invoice.InvoiceNumber,
		"tenant":  invoice.TenantID,
		"total":   invoice.Total,
	}).Info("invoice created")

	s.dispatcher.Dispatch(effects)
	return invoice, nil
}

// GenerateForTenant builds the current-period subscription invoice for a
// tenant from its plan and billing cycle.
func (s *InvoiceService) GenerateForTenant(tenant *models.Tenant) (*models.Invoice, error) {
	plan, ok := GetPlanConfig(tenant.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: plan %q not found", ErrValidation, tenant.Plan)
	}

	amount := PriceFor(tenant.Plan, tenant.BillingCycle)
	now := s.now()

	periodStart := now
	periodEnd := now.AddDate(0, 1, 0)
	cycleLabel := "Monthly"
	if tenant.BillingCycle == models.CycleAnnual {
		periodEnd = now.AddDate(1, 0, 0)
		cycleLabel = "Annual"
	}
	dueDate := now.AddDate(0, 0, 30)

	return s.Create(CreateInvoiceInput{
		TenantID:    tenant.ID,
		Amount:      amount,
		Currency:    s.cfg.Currency,
		DueDate:     dueDate,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Items: []models.InvoiceItem{{
			Description: fmt.Sprintf("Plan %s - %s", plan.Name, cycleLabel),
			Quantity:    1,
			UnitPrice:   amount,
			Total:       amount,
		}},
		Notes: fmt.Sprintf("Auto-generated invoice for period %s - %s",
			periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
		Actor: PlatformOperator(),
	})
}

// HasPendingInvoiceForPeriod is the duplicate-period guard: a pending invoice
// whose period start is within one day of the given start counts as existing.
func (s *InvoiceService) HasPendingInvoiceForPeriod(tenantID uint, periodStart time.Time) (bool, error) {
	var count int64
	err := s.db.Model(&models.Invoice{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.InvoicePending).
		Where("period_start BETWEEN ? AND ?",
			periodStart.Add(-24*time.Hour), periodStart.Add(24*time.Hour)).
		Count(&count).Error
	return count > 0, err
}

type InvoiceFilters struct {
	TenantID  uint
	Status    models.InvoiceStatus
	StartDate *time.Time
	EndDate   *time.Time
}

func (s *InvoiceService) FindAll(filters InvoiceFilters) ([]models.Invoice, error) {
	q := s.db.Preload("Tenant").Preload("Payments").Order("created_at DESC")
	if filters.TenantID != 0 {
		q = q.Where("tenant_id = ?", filters.TenantID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.StartDate != nil {
		q = q.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		q = q.Where("created_at <= ?", *filters.EndDate)
	}
	var invoices []models.Invoice
	err := q.Find(&invoices).Error
	return invoices, err
}

func (s *InvoiceService) FindOne(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Preload("Tenant").Preload("Payments").Preload("TaxConfig").First(&invoice, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *InvoiceService) FindByTenant(tenantID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.Where("tenant_id = ?", tenantID).Preload("Payments").
		Order("created_at DESC").Find(&invoices).Error
	return invoices, err
}

// FindByReference resolves an invoice from the payment reference handed to
// the gateway.
func (s *InvoiceService) FindByReference(reference string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Preload("Tenant").Where("payment_reference = ?", reference).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invoice with reference %q", ErrNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindOverdue returns pending invoices past their due date.
func (s *InvoiceService) FindOverdue() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.Preload("Tenant").
		Where("status = ? AND due_date < ?", models.InvoicePending, s.now()).
		Find(&invoices).Error
	return invoices, err
}

// MarkAsPaid transitions pending|overdue → paid with compare-and-set
// semantics: an invoice that is already paid or voided yields a conflict, and
// a concurrent transition loses cleanly instead of overwriting.
func (s *InvoiceService) MarkAsPaid(id uint, paidAt time.Time, actor Actor) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = markInvoicePaid(tx, id, paidAt, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func markInvoicePaid(tx *gorm.DB, id uint, paidAt time.Time, actor Actor) (*models.Invoice, error) {
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	res := tx.Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id, []models.InvoiceStatus{models.InvoicePending, models.InvoiceOverdue}).
		Updates(map[string]any{"status": models.InvoicePaid, "paid_at": paidAt})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var current models.Invoice
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, id)
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: invoice %s is %s and cannot be marked paid",
			ErrConflict, current.InvoiceNumber, current.Status)
	}

	var invoice models.Invoice
	if err := tx.First(&invoice, id).Error; err != nil {
		return nil, err
	}

	if err := record(tx, invoice.TenantID, actor, models.ActionPaymentReceived,
		fmt.Sprintf("Invoice %s marked as paid", invoice.InvoiceNumber),
		map[string]any{
			"invoiceId":     invoice.ID,
			"invoiceNumber": invoice.InvoiceNumber,
			"amount":        invoice.Total,
			"paidAt":        invoice.PaidAt,
		}); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkAsOverdue transitions pending → overdue. Any other current status is a
// no-op so a concurrent payment is never clobbered.
func (s *InvoiceService) MarkAsOverdue(id uint) (*models.Invoice, error) {
	return markInvoiceOverdue(s.db, id)
}

func markInvoiceOverdue(tx *gorm.DB, id uint) (*models.Invoice, error) {
	res := tx.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, models.InvoicePending).
		Update("status", models.InvoiceOverdue)
	if res.Error != nil {
		return nil, res.Error
	}
	var invoice models.Invoice
	if err := tx.First(&invoice, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &invoice, nil
}

// Cancel soft-voids an invoice. Paid and already-voided invoices cannot be
// cancelled.
func (s *InvoiceService) Cancel(id uint, reason string, actor Actor) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var current models.Invoice
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: invoice %d", ErrNotFound, id)
			}
			return err
		}
		if current.Status == models.InvoicePaid {
			return fmt.Errorf("%w: cannot cancel a paid invoice", ErrConflict)
		}
		if current.Status == models.InvoiceVoided {
			return fmt.Errorf("%w: invoice is already voided", ErrConflict)
		}

		if reason == "" {
			reason = "No reason given"
		}
		now := s.now()
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status IN ?", id,
				[]models.InvoiceStatus{models.InvoiceDraft, models.InvoicePending, models.InvoiceOverdue}).
			Updates(map[string]any{
				"status":              models.InvoiceVoided,
				"cancellation_reason": reason,
				"cancelled_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: invoice %s state changed concurrently", ErrConflict, current.InvoiceNumber)
		}

		if err := tx.First(&current, id).Error; err != nil {
			return err
		}
		invoice = &current

		return record(tx, current.TenantID, actor, models.ActionInvoiceCancelled,
			fmt.Sprintf("Invoice %s voided: %s", current.InvoiceNumber, reason),
			map[string]any{
				"invoiceId":     current.ID,
				"invoiceNumber": current.InvoiceNumber,
				"reason":        reason,
				"voidedAt":      now,
			})
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// UpdateOverdueStatus flips every pending invoice past its due date to
// overdue and returns how many changed.
func (s *InvoiceService) UpdateOverdueStatus() (int, error) {
	res := s.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoicePending, s.now()).
		Update("status", models.InvoiceOverdue)
	return int(res.RowsAffected), res.Error
}

type InvoiceStats struct {
	Pending   int64 `json:"pending"`
	Overdue   int64 `json:"overdue"`
	Paid      int64 `json:"paid"`
	Cancelled int64 `json:"cancelled"`
	Total     int64 `json:"total"`
}

func (s *InvoiceService) Stats() (*InvoiceStats, error) {
	stats := &InvoiceStats{}
	counts := map[models.InvoiceStatus]*int64{
		models.InvoicePending: &stats.Pending,
		models.InvoiceOverdue: &stats.Overdue,
		models.InvoicePaid:    &stats.Paid,
		models.InvoiceVoided:  &stats.Cancelled,
	}
	for status, dst := range counts {
		if err := s.db.Model(&models.Invoice{}).Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(&models.Invoice{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// nextInvoiceNumber allocates INV-YYYYMM-NNNN from the per-month sequence.
// The counter update is compare-and-set with a short retry so two concurrent
// creations never share a number; a genuine write conflict surfaces as an
// error and rolls the creation back.
func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	period := now.Format("200601")

	for attempt := 0; attempt < 3; attempt++ {
		var seq models.InvoiceSequence
		err := tx.Where("period = ?", period).First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = models.InvoiceSequence{Period: period, Counter: 1}
			if err := tx.Create(&seq).Error; err != nil {
				// lost the race on a fresh month, retry against the new row
				continue
			}
			return fmt.Sprintf("INV-%s-%04d", period, seq.Counter), nil
		}
		if err != nil {
			return "", err
		}

		next := seq.Counter + 1
		res := tx.Model(&models.InvoiceSequence{}).
			Where("period = ? AND counter = ?", period, seq.Counter).
			Update("counter", next)
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return fmt.Sprintf("INV-%s-%04d", period, next), nil
		}
	}
	return "", fmt.Errorf("invoice number allocation for period %s kept conflicting", period)
}
