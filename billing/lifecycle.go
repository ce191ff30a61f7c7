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

// LifecycleService drives the tenant status state machine:
// trial → active → suspended → active, and trial → suspended on expiry.
type LifecycleService struct {
	db         *gorm.DB
	cfg        config.Billing
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewLifecycleService(db *gorm.DB, cfg config.Billing, dispatcher *Dispatcher) *LifecycleService {
	return &LifecycleService{db: db, cfg: cfg, dispatcher: dispatcher, now: time.Now}
}

func extendExpiry(base time.Time, cycle models.BillingCycle) time.Time {
	if cycle == models.CycleAnnual {
		return base.AddDate(1, 0, 0)
	}
	return base.AddDate(0, 1, 0)
}

// SuspendOverdueTenants finds pending invoices whose due date passed more than
// the grace period ago and suspends their owning tenants. Each tenant is
// handled in its own transaction; one failure does not stop the sweep.
func (s *LifecycleService) SuspendOverdueTenants() SweepResult {
	result := SweepResult{Errors: []string{}}

	now := s.now()
	cutoff := now.AddDate(0, 0, -s.cfg.GracePeriodDays)

	var invoices []models.Invoice
	if err := s.db.Preload("Tenant").
		Where("status = ? AND due_date < ?", models.InvoicePending, cutoff).
		Find(&invoices).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	log.WithField("invoices", len(invoices)).Info("overdue suspension sweep started")

	for i := range invoices {
		invoice := &invoices[i]
		tenant := invoice.Tenant

		if tenant.Status != models.TenantActive {
			continue
		}

		var effects []Effect
		err := s.db.Transaction(func(tx *gorm.DB) error {
			effects = effects[:0]
			if _, err := markInvoiceOverdue(tx, invoice.ID); err != nil {
				return err
			}

			res := tx.Model(&models.Tenant{}).
				Where("id = ? AND status = ?", tenant.ID, models.TenantActive).
				Update("status", models.TenantSuspended)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// status changed under us (e.g. a webhook paid the invoice)
				return nil
			}

			if err := record(tx, tenant.ID, PlatformOperator(), models.ActionTenantSuspended,
				fmt.Sprintf("Tenant suspended for non-payment - invoice %s overdue", invoice.InvoiceNumber),
				map[string]any{
					"invoiceId":       invoice.ID,
					"invoiceNumber":   invoice.InvoiceNumber,
					"dueDate":         invoice.DueDate,
					"gracePeriodDays": s.cfg.GracePeriodDays,
				}); err != nil {
				return err
			}

			ten, inv := tenant, invoice
			effects = append(effects, Effect{
				Name: "tenant-suspended-email",
				Run:  func(m mail.Mailer) error { return m.SendTenantSuspendedEmail(&ten, inv) },
			})
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("suspend tenant %s: %v", tenant.Slug, err))
			continue
		}
		if len(effects) == 0 {
			continue
		}

		s.dispatcher.Dispatch(effects)
		result.Count++
		log.WithField("tenant", tenant.Slug).Info("tenant suspended")
	}

	log.WithFields(log.Fields{
		"suspended": result.Count,
		"errors":    len(result.Errors),
	}).Info("overdue suspension sweep completed")

	return result
}

// SuspendExpiredFreeTrials suspends free-plan tenants whose trial has ended.
// There is no grace period on trials.
func (s *LifecycleService) SuspendExpiredFreeTrials() SweepResult {
	result := SweepResult{Errors: []string{}}
	now := s.now()

	var tenants []models.Tenant
	if err := s.db.
		Where("plan = ? AND status = ? AND trial_ends_at < ?", FreePlan, models.TenantTrial, now).
		Find(&tenants).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	log.WithField("tenants", len(tenants)).Info("trial expiry sweep started")

	for i := range tenants {
		tenant := &tenants[i]

		err := s.db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Tenant{}).
				Where("id = ? AND status = ?", tenant.ID, models.TenantTrial).
				Update("status", models.TenantSuspended)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}

			daysExpired := 0
			if tenant.TrialEndsAt != nil {
				daysExpired = int(now.Sub(*tenant.TrialEndsAt).Hours() / 24)
			}
			return record(tx, tenant.ID, PlatformOperator(), models.ActionTenantSuspended,
				fmt.Sprintf("Free account suspended - %d-day trial expired", s.cfg.TrialDays),
				map[string]any{
					"plan":        tenant.Plan,
					"trialEndsAt": tenant.TrialEndsAt,
					"daysExpired": daysExpired,
				})
		})
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("suspend tenant %d: %v", tenant.ID, err))
			continue
		}

		result.Count++
		log.WithField("tenant", tenant.Slug).Info("trial-expired tenant suspended")
	}

	log.WithFields(log.Fields{
		"suspended": result.Count,
		"errors":    len(result.Errors),
	}).Info("trial expiry sweep completed")

	return result
}

// ActivateTenantAfterPayment reactivates a suspended tenant and extends its
// plan by one billing cycle from now. Active tenants instead have their
// current expiry extended by one cycle.
func (s *LifecycleService) ActivateTenantAfterPayment(tenantID uint) error {
	var effects []Effect
	err := s.db.Transaction(func(tx *gorm.DB) error {
		effects = effects[:0]
		var tenant models.Tenant
		if err := tx.First(&tenant, tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: tenant %d", ErrNotFound, tenantID)
			}
			return err
		}
		var err error
		effects, err = applyPaymentToTenant(tx, &tenant, nil, s.now())
		return err
	})
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(effects)
	return nil
}

// applyPaymentToTenant holds the shared activation/extension rule used by the
// webhook path and manual payments. A suspended tenant is reactivated with a
// fresh cycle counted from now; no unused prior time is credited. An active
// tenant's expiry is extended from its current value.
func applyPaymentToTenant(tx *gorm.DB, tenant *models.Tenant, payment *models.Payment, now time.Time) ([]Effect, error) {
	var effects []Effect

	if tenant.Status == models.TenantSuspended {
		expiresAt := extendExpiry(now, tenant.BillingCycle)

		res := tx.Model(&models.Tenant{}).
			Where("id = ? AND status = ?", tenant.ID, models.TenantSuspended).
			Updates(map[string]any{
				"status":          models.TenantActive,
				"plan_expires_at": expiresAt,
				"plan_started_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// someone else reactivated first; nothing more to do
			return nil, nil
		}
		tenant.Status = models.TenantActive
		tenant.PlanExpiresAt = &expiresAt
		tenant.PlanStartedAt = &now

		meta := map[string]any{
			"previousStatus": models.TenantSuspended,
			"newExpiresAt":   expiresAt,
		}
		if payment != nil {
			meta["paymentId"] = payment.ID
		}
		if err := record(tx, tenant.ID, PlatformOperator(), models.ActionTenantActivated,
			"Tenant reactivated after payment", meta); err != nil {
			return nil, err
		}

		if payment != nil {
			ten, pay := *tenant, payment
			effects = append(effects, Effect{
				Name: "tenant-activated-email",
				Run:  func(m mail.Mailer) error { return m.SendTenantActivatedEmail(&ten, pay) },
			})
		}
		return effects, nil
	}

	base := now
	if tenant.PlanExpiresAt != nil {
		base = *tenant.PlanExpiresAt
	}
	newExpires := extendExpiry(base, tenant.BillingCycle)
	if err := tx.Model(&models.Tenant{}).Where("id = ?", tenant.ID).
		Update("plan_expires_at", newExpires).Error; err != nil {
		return nil, err
	}
	tenant.PlanExpiresAt = &newExpires
	return effects, nil
}
