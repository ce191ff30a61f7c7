package billing

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"factura/config"
	"factura/mail"
	"factura/models"
)

// ReminderService schedules payment reminders at fixed day-offsets before an
// invoice's due date and runs the daily send sweep.
type ReminderService struct {
	db     *gorm.DB
	cfg    config.Billing
	mailer mail.Mailer
	now    func() time.Time
}

func NewReminderService(db *gorm.DB, cfg config.Billing, mailer mail.Mailer) *ReminderService {
	return &ReminderService{db: db, cfg: cfg, mailer: mailer, now: time.Now}
}

// CreateForInvoice persists one reminder per configured offset, skipping any
// whose scheduled date is not strictly in the future.
func (s *ReminderService) CreateForInvoice(invoice *models.Invoice) ([]models.PaymentReminder, error) {
	return s.createForInvoice(s.db, invoice)
}

func (s *ReminderService) createForInvoice(tx *gorm.DB, invoice *models.Invoice) ([]models.PaymentReminder, error) {
	now := s.now()
	var created []models.PaymentReminder

	for _, days := range s.cfg.ReminderOffsets {
		scheduled := invoice.DueDate.AddDate(0, 0, -days)
		if !scheduled.After(now) {
			continue
		}
		reminder := models.PaymentReminder{
			TenantID:      invoice.TenantID,
			InvoiceID:     invoice.ID,
			DaysBeforeDue: days,
			ScheduledDate: scheduled,
			Status:        models.ReminderPending,
		}
		if err := tx.Create(&reminder).Error; err != nil {
			return nil, err
		}
		created = append(created, reminder)
	}

	log.WithFields(log.Fields{
		"invoice":   invoice.InvoiceNumber,
		"reminders": len(created),
	}).Debug("payment reminders scheduled")

	return created, nil
}

// SweepResult summarizes a batch run: items processed plus per-item errors.
// One item's failure never aborts the rest of the batch.
type SweepResult struct {
	Count  int      `json:"count"`
	Errors []string `json:"errors"`
}

// SendScheduled is the daily sweep: it delivers every pending reminder whose
// scheduled date has arrived. Reminders for invoices that are no longer
// pending are marked sent without a delivery. A failed send is terminal.
func (s *ReminderService) SendScheduled() SweepResult {
	result := SweepResult{Errors: []string{}}

	now := s.now()
	endOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)

	var reminders []models.PaymentReminder
	if err := s.db.Preload("Tenant").Preload("Invoice").
		Where("status = ? AND scheduled_date < ?", models.ReminderPending, endOfToday).
		Find(&reminders).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	log.WithField("reminders", len(reminders)).Info("reminder sweep started")

	for i := range reminders {
		reminder := &reminders[i]

		if reminder.Invoice.Status != models.InvoicePending {
			// the invoice was paid, voided or escalated; nothing to remind
			sentAt := now
			s.db.Model(reminder).Updates(map[string]any{
				"status":  models.ReminderSent,
				"sent_at": sentAt,
			})
			continue
		}

		if err := s.mailer.SendPaymentReminderEmail(&reminder.Tenant, &reminder.Invoice, reminder.DaysBeforeDue); err != nil {
			s.db.Model(reminder).Updates(map[string]any{
				"status":        models.ReminderFailed,
				"error_message": err.Error(),
			})
			result.Errors = append(result.Errors,
				fmt.Sprintf("reminder for tenant %s: %v", reminder.Tenant.Slug, err))
			continue
		}

		sentAt := now
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(reminder).Updates(map[string]any{
				"status":  models.ReminderSent,
				"sent_at": sentAt,
			}).Error; err != nil {
				return err
			}
			return record(tx, reminder.TenantID, PlatformOperator(), models.ActionReminderSent,
				fmt.Sprintf("Payment reminder sent - %d days before due date", reminder.DaysBeforeDue),
				map[string]any{
					"reminderId":    reminder.ID,
					"invoiceId":     reminder.InvoiceID,
					"invoiceNumber": reminder.Invoice.InvoiceNumber,
					"daysBeforeDue": reminder.DaysBeforeDue,
					"dueDate":       reminder.Invoice.DueDate,
				})
		})
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("reminder for tenant %s: %v", reminder.Tenant.Slug, err))
			continue
		}

		result.Count++
	}

	log.WithFields(log.Fields{
		"sent":   result.Count,
		"errors": len(result.Errors),
	}).Info("reminder sweep completed")

	return result
}

// CleanupOld permanently removes resolved reminders older than 90 days.
func (s *ReminderService) CleanupOld() (int, error) {
	cutoff := s.now().AddDate(0, 0, -90)
	res := s.db.Unscoped().
		Where("created_at < ? AND status <> ?", cutoff, models.ReminderPending).
		Delete(&models.PaymentReminder{})
	if res.Error != nil {
		return 0, res.Error
	}
	log.WithField("deleted", res.RowsAffected).Info("old reminders purged")
	return int(res.RowsAffected), nil
}

func (s *ReminderService) GetPending(tenantID uint) ([]models.PaymentReminder, error) {
	q := s.db.Preload("Invoice").Preload("Tenant").
		Where("status = ?", models.ReminderPending).
		Order("scheduled_date ASC")
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var reminders []models.PaymentReminder
	err := q.Find(&reminders).Error
	return reminders, err
}
