package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"factura/config"
	"factura/gateway"
	"factura/models"
)

// PaymentLinker is the slice of the gateway client the orchestrator needs.
type PaymentLinker interface {
	CreatePaymentLink(ctx context.Context, in gateway.PaymentLinkRequest) (*gateway.PaymentLink, error)
}

// BillingService coordinates the periodic sweeps and read paths that span
// invoices, tenants and the gateway.
type BillingService struct {
	db       *gorm.DB
	cfg      config.Billing
	invoices *InvoiceService
	links    PaymentLinker
	now      func() time.Time
}

func NewBillingService(db *gorm.DB, cfg config.Billing, invoices *InvoiceService, links PaymentLinker) *BillingService {
	return &BillingService{db: db, cfg: cfg, invoices: invoices, links: links, now: time.Now}
}

// GenerateMonthlyInvoices invoices every active tenant whose billing day falls
// within one day of today (clamped to 1-28). The duplicate-period guard makes
// the sweep idempotent: re-running it the same day generates nothing new.
func (s *BillingService) GenerateMonthlyInvoices() SweepResult {
	result := SweepResult{Errors: []string{}}

	now := s.now()
	day := now.Day()
	minDay := day - 1
	if minDay < 1 {
		minDay = 1
	}
	maxDay := day + 1
	if maxDay > 28 {
		maxDay = 28
	}

	var tenants []models.Tenant
	if err := s.db.
		Where("status = ? AND billing_day BETWEEN ? AND ?", models.TenantActive, minDay, maxDay).
		Find(&tenants).Error; err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	log.WithFields(log.Fields{"tenants": len(tenants), "cutoff_day": day}).
		Info("monthly invoice generation started")

	for i := range tenants {
		tenant := &tenants[i]

		periodStart := time.Date(now.Year(), now.Month(), tenant.BillingDay, 0, 0, 0, 0, now.Location())
		if periodStart.After(now) {
			periodStart = periodStart.AddDate(0, -1, 0)
		}

		exists, err := s.invoices.HasPendingInvoiceForPeriod(tenant.ID, periodStart)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("tenant %s: %v", tenant.Slug, err))
			continue
		}
		if exists {
			log.WithField("tenant", tenant.Slug).Debug("pending invoice already exists for period")
			continue
		}

		// annual tenants are only re-invoiced when their plan is about to run out
		if tenant.BillingCycle == models.CycleAnnual &&
			tenant.PlanExpiresAt != nil && tenant.PlanExpiresAt.After(now.AddDate(0, 0, 31)) {
			continue
		}

		if _, err := s.invoices.GenerateForTenant(tenant); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("tenant %s: %v", tenant.Slug, err))
			continue
		}
		result.Count++
	}

	log.WithFields(log.Fields{
		"generated": result.Count,
		"errors":    len(result.Errors),
	}).Info("monthly invoice generation completed")

	return result
}

// AttachPaymentLink makes sure an invoice carries a gateway payment link,
// creating one only when none exists yet. Link creation is never blindly
// retried against the gateway.
func (s *BillingService) AttachPaymentLink(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	invoice, err := s.invoices.FindOne(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoicePending && invoice.Status != models.InvoiceOverdue {
		return nil, fmt.Errorf("%w: invoice %s is %s, only open invoices can carry a payment link",
			ErrConflict, invoice.InvoiceNumber, invoice.Status)
	}
	if invoice.PaymentLinkURL != "" {
		return invoice, nil
	}

	reference := invoice.PaymentReference
	if reference == "" {
		reference = uuid.NewString()
		if err := s.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).
			Update("payment_reference", reference).Error; err != nil {
			return nil, err
		}
		invoice.PaymentReference = reference
	}

	due := invoice.DueDate
	link, err := s.links.CreatePaymentLink(ctx, gateway.PaymentLinkRequest{
		Amount:         invoice.Total,
		Currency:       invoice.Currency,
		Description:    fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		Reference:      reference,
		CustomerEmail:  invoice.Tenant.ContactEmail,
		CustomerName:   invoice.Tenant.ContactName,
		ExpirationDate: &due,
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"payment_link_id":  link.ID,
		"payment_link_url": link.URL,
	}).Error; err != nil {
		return nil, err
	}
	invoice.PaymentLinkID = link.ID
	invoice.PaymentLinkURL = link.URL
	return invoice, nil
}

type MonthRevenue struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

type DashboardStats struct {
	MonthlyRevenue    float64        `json:"monthlyRevenue"`
	PendingInvoices   int64          `json:"pendingInvoices"`
	OverdueInvoices   int64          `json:"overdueInvoices"`
	PaidInvoices      int64          `json:"paidInvoices"`
	CancelledInvoices int64          `json:"cancelledInvoices"`
	SuspendedTenants  int64          `json:"suspendedTenants"`
	UpcomingDue       int64          `json:"upcomingDue"`
	ProjectedRevenue  float64        `json:"projectedRevenue"`
	RevenueHistory    []MonthRevenue `json:"revenueHistory"`
}

func (s *BillingService) paidRevenueBetween(start, end time.Time) (float64, error) {
	var total float64
	err := s.db.Model(&models.Invoice{}).
		Where("status = ? AND paid_at BETWEEN ? AND ?", models.InvoicePaid, start, end).
		Select("COALESCE(SUM(total), 0)").Scan(&total).Error
	return total, err
}

// GetDashboardStats is a read-only aggregation over invoices and tenants.
func (s *BillingService) GetDashboardStats() (*DashboardStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	stats := &DashboardStats{RevenueHistory: []MonthRevenue{}}

	var err error
	if stats.MonthlyRevenue, err = s.paidRevenueBetween(monthStart, monthEnd); err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.Invoice{}).
		Where("status = ?", models.InvoicePending).Count(&stats.PendingInvoices).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoicePending, now).
		Count(&stats.OverdueInvoices).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Invoice{}).
		Where("status = ?", models.InvoicePaid).Count(&stats.PaidInvoices).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Invoice{}).
		Where("status = ?", models.InvoiceVoided).Count(&stats.CancelledInvoices).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Tenant{}).
		Where("status = ?", models.TenantSuspended).Count(&stats.SuspendedTenants).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date BETWEEN ? AND ?", models.InvoicePending, now, now.AddDate(0, 0, 7)).
		Count(&stats.UpcomingDue).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Invoice{}).
		Where("status = ?", models.InvoicePending).
		Select("COALESCE(SUM(total), 0)").Scan(&stats.ProjectedRevenue).Error; err != nil {
		return nil, err
	}

	for i := 5; i >= 0; i-- {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		revenue, err := s.paidRevenueBetween(start, end)
		if err != nil {
			return nil, err
		}
		stats.RevenueHistory = append(stats.RevenueHistory, MonthRevenue{
			Month:   start.Format("Jan 2006"),
			Revenue: revenue,
		})
	}

	return stats, nil
}
