package billing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"factura/gateway"
	"factura/models"
)

type fakeLinker struct {
	calls int32
	fail  error
}

func (f *fakeLinker) CreatePaymentLink(ctx context.Context, in gateway.PaymentLinkRequest) (*gateway.PaymentLink, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail != nil {
		return nil, f.fail
	}
	return &gateway.PaymentLink{
		ID:        "link-" + in.Reference,
		URL:       "https://checkout.bold.co/payment/link-" + in.Reference,
		Reference: in.Reference,
		Amount:    in.Amount,
		Status:    "ACTIVE",
		CreatedAt: time.Now(),
	}, nil
}

func newBillingService(t *testing.T, db *gorm.DB, linker PaymentLinker, at time.Time) (*BillingService, *InvoiceService) {
	invoices := newInvoiceService(t, db, &recordingMailer{})
	setInvoiceClock(invoices, at)
	svc := NewBillingService(db, testConfig(), invoices, linker)
	svc.now = fixedClock(at)
	return svc, invoices
}

func TestGenerateMonthlyInvoicesOnBillingDay(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, _ := newBillingService(t, db, &fakeLinker{}, now)

	taxes := NewTaxConfigService(db)
	_, err := taxes.Create(TaxConfigInput{Name: "IVA 19%", Rate: 19, ApplicationType: models.TaxAdditional, IsDefault: true})
	assert.NoError(t, err)

	tenant := createTenant(t, db, "acme", models.TenantActive)
	assert.NoError(t, db.Model(tenant).Update("billing_day", 15).Error)

	result := svc.GenerateMonthlyInvoices()
	assert.Equal(t, 1, result.Count)
	assert.Empty(t, result.Errors)

	var invoice models.Invoice
	assert.NoError(t, db.Where("tenant_id = ?", tenant.ID).First(&invoice).Error)
	assert.Equal(t, models.InvoicePending, invoice.Status)
	assert.Equal(t, 89900.0, invoice.Amount)
	assert.Equal(t, 17081.0, invoice.Tax)
	assert.Equal(t, 106981.0, invoice.Total)
	assert.True(t, invoice.DueDate.Equal(now.AddDate(0, 0, 30)))
	assert.Len(t, invoice.Items, 1)
}

func TestGenerateMonthlyInvoicesIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, _ := newBillingService(t, db, &fakeLinker{}, now)

	tenant := createTenant(t, db, "acme", models.TenantActive)
	assert.NoError(t, db.Model(tenant).Update("billing_day", 15).Error)

	first := svc.GenerateMonthlyInvoices()
	assert.Equal(t, 1, first.Count)

	// re-running the sweep the same day must not double-invoice
	second := svc.GenerateMonthlyInvoices()
	assert.Equal(t, 0, second.Count)
	assert.Empty(t, second.Errors)

	var count int64
	assert.NoError(t, db.Model(&models.Invoice{}).Where("tenant_id = ?", tenant.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGenerateMonthlyInvoicesWindow(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, _ := newBillingService(t, db, &fakeLinker{}, now)

	onTheEdge := createTenant(t, db, "edge", models.TenantActive)
	assert.NoError(t, db.Model(onTheEdge).Update("billing_day", 14).Error)

	outside := createTenant(t, db, "outside", models.TenantActive)
	assert.NoError(t, db.Model(outside).Update("billing_day", 18).Error)

	suspended := createTenant(t, db, "suspended", models.TenantSuspended)
	assert.NoError(t, db.Model(suspended).Update("billing_day", 15).Error)

	result := svc.GenerateMonthlyInvoices()
	assert.Equal(t, 1, result.Count)

	var count int64
	assert.NoError(t, db.Model(&models.Invoice{}).Where("tenant_id = ?", onTheEdge.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.NoError(t, db.Model(&models.Invoice{}).Where("tenant_id IN ?", []uint{outside.ID, suspended.ID}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestGenerateMonthlyInvoicesSkipsCoveredAnnualTenants(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, _ := newBillingService(t, db, &fakeLinker{}, now)

	covered := createTenant(t, db, "covered", models.TenantActive)
	farOut := now.AddDate(0, 6, 0)
	assert.NoError(t, db.Model(covered).Updates(map[string]any{
		"billing_day": 15, "billing_cycle": models.CycleAnnual, "plan_expires_at": farOut,
	}).Error)

	expiring := createTenant(t, db, "expiring", models.TenantActive)
	soon := now.AddDate(0, 0, 20)
	assert.NoError(t, db.Model(expiring).Updates(map[string]any{
		"billing_day": 15, "billing_cycle": models.CycleAnnual, "plan_expires_at": soon,
	}).Error)

	result := svc.GenerateMonthlyInvoices()
	assert.Equal(t, 1, result.Count)

	var invoice models.Invoice
	assert.NoError(t, db.Where("tenant_id = ?", expiring.ID).First(&invoice).Error)
	assert.Equal(t, 895404.0, invoice.Amount) // annual basic price

	var count int64
	assert.NoError(t, db.Model(&models.Invoice{}).Where("tenant_id = ?", covered.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAttachPaymentLink(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	linker := &fakeLinker{}
	svc, invoices := newBillingService(t, db, linker, now)

	tenant := createTenant(t, db, "acme", models.TenantActive)
	invoice, err := invoices.Create(CreateInvoiceInput{
		TenantID:    tenant.ID,
		Amount:      89900,
		DueDate:     now.AddDate(0, 0, 30),
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		Actor:       PlatformOperator(),
	})
	assert.NoError(t, err)

	linked, err := svc.AttachPaymentLink(context.Background(), invoice.ID)
	assert.NoError(t, err)
	assert.NotEmpty(t, linked.PaymentReference)
	assert.NotEmpty(t, linked.PaymentLinkURL)
	assert.Equal(t, int32(1), linker.calls)

	// a second call returns the existing link without touching the gateway
	again, err := svc.AttachPaymentLink(context.Background(), invoice.ID)
	assert.NoError(t, err)
	assert.Equal(t, linked.PaymentLinkURL, again.PaymentLinkURL)
	assert.Equal(t, int32(1), linker.calls)
}

func TestAttachPaymentLinkRejectsClosedInvoices(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, invoices := newBillingService(t, db, &fakeLinker{}, now)

	tenant := createTenant(t, db, "acme", models.TenantActive)
	invoice, err := invoices.Create(CreateInvoiceInput{
		TenantID:    tenant.ID,
		Amount:      89900,
		DueDate:     now.AddDate(0, 0, 30),
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		Actor:       PlatformOperator(),
	})
	assert.NoError(t, err)

	_, err = invoices.MarkAsPaid(invoice.ID, now, PlatformOperator())
	assert.NoError(t, err)

	_, err = svc.AttachPaymentLink(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetDashboardStats(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, _ := newBillingService(t, db, &fakeLinker{}, now)

	tenant := createTenant(t, db, "acme", models.TenantActive)

	paidAt := now.AddDate(0, 0, -2)
	paid := seedPendingInvoice(t, db, tenant, "INV-202406-0001", now.AddDate(0, 0, 10))
	assert.NoError(t, db.Model(paid).Updates(map[string]any{
		"status": models.InvoicePaid, "paid_at": paidAt, "total": 106981.0,
	}).Error)

	seedPendingInvoice(t, db, tenant, "INV-202406-0002", now.AddDate(0, 0, 5))

	stats, err := svc.GetDashboardStats()
	assert.NoError(t, err)
	assert.Equal(t, 106981.0, stats.MonthlyRevenue)
	assert.Equal(t, int64(1), stats.PendingInvoices)
	assert.Equal(t, int64(1), stats.PaidInvoices)
	assert.Equal(t, int64(1), stats.UpcomingDue)
	assert.Equal(t, 89900.0, stats.ProjectedRevenue)
	assert.Len(t, stats.RevenueHistory, 6)
	assert.Equal(t, "Jun 2024", stats.RevenueHistory[5].Month)
	assert.Equal(t, 106981.0, stats.RevenueHistory[5].Revenue)
}
