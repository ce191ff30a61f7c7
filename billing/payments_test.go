package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"factura/models"
)

func newPaymentService(db *gorm.DB, mailer *recordingMailer) *PaymentService {
	return NewPaymentService(db, testConfig(), NewDispatcher(mailer))
}

func TestCreateManualPaymentSettlesInvoice(t *testing.T) {
	db := newTestDB(t)
	mailer := &recordingMailer{}
	svc := newPaymentService(db, mailer)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	tenant := createTenant(t, db, "acme", models.TenantSuspended)
	invoice := seedPendingInvoice(t, db, tenant, "INV-202404-0001", now.AddDate(0, 0, -5))

	payment, err := svc.Create(CreatePaymentInput{
		TenantID:      tenant.ID,
		InvoiceID:     &invoice.ID,
		Amount:        invoice.Total,
		PaymentMethod: models.MethodTransfer,
		Notes:         "wire received",
		Actor:         PlatformOperator(),
	})
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)
	assert.Equal(t, "COP", payment.Currency)
	assert.Nil(t, payment.GatewayTransactionID)

	var reloadedInvoice models.Invoice
	assert.NoError(t, db.First(&reloadedInvoice, invoice.ID).Error)
	assert.Equal(t, models.InvoicePaid, reloadedInvoice.Status)

	var reloadedTenant models.Tenant
	assert.NoError(t, db.First(&reloadedTenant, tenant.ID).Error)
	assert.Equal(t, models.TenantActive, reloadedTenant.Status)
	assert.True(t, reloadedTenant.PlanExpiresAt.Equal(now.AddDate(0, 1, 0)))

	assert.Equal(t, []string{"acme"}, mailer.Activated)
	assert.Equal(t, []string{"acme"}, mailer.Confirmed)
}

func TestCreatePaymentWithoutInvoice(t *testing.T) {
	db := newTestDB(t)
	mailer := &recordingMailer{}
	svc := newPaymentService(db, mailer)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	tenant := createTenant(t, db, "acme", models.TenantActive)
	expiry := now.AddDate(0, 0, 15)
	assert.NoError(t, db.Model(tenant).Update("plan_expires_at", expiry).Error)

	payment, err := svc.Create(CreatePaymentInput{
		TenantID: tenant.ID,
		Amount:   89900,
		Actor:    TenantScoped(tenant.ID),
	})
	assert.NoError(t, err)
	assert.Nil(t, payment.InvoiceID)
	assert.Equal(t, models.MethodTransfer, payment.PaymentMethod)

	// an active tenant's expiry stacks one cycle on the current value
	var reloaded models.Tenant
	assert.NoError(t, db.First(&reloaded, tenant.ID).Error)
	assert.True(t, reloaded.PlanExpiresAt.Equal(expiry.AddDate(0, 1, 0)))

	assert.Equal(t, []string{"acme"}, mailer.Confirmed)
	assert.Empty(t, mailer.Activated)
}

func TestCreatePaymentValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newPaymentService(db, &recordingMailer{})
	tenant := createTenant(t, db, "acme", models.TenantActive)

	_, err := svc.Create(CreatePaymentInput{TenantID: tenant.ID, Amount: 0, Actor: PlatformOperator()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(CreatePaymentInput{TenantID: tenant.ID, Amount: -100, Actor: PlatformOperator()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(CreatePaymentInput{TenantID: 999, Amount: 100, Actor: PlatformOperator()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePaymentAgainstClosedInvoice(t *testing.T) {
	db := newTestDB(t)
	svc := newPaymentService(db, &recordingMailer{})

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	tenant := createTenant(t, db, "acme", models.TenantActive)

	paid := seedPendingInvoice(t, db, tenant, "INV-202404-0002", now.AddDate(0, 0, 10))
	assert.NoError(t, db.Model(paid).Update("status", models.InvoicePaid).Error)

	_, err := svc.Create(CreatePaymentInput{
		TenantID: tenant.ID, InvoiceID: &paid.ID, Amount: paid.Total, Actor: PlatformOperator(),
	})
	assert.ErrorIs(t, err, ErrConflict)

	voided := seedPendingInvoice(t, db, tenant, "INV-202404-0003", now.AddDate(0, 0, 10))
	assert.NoError(t, db.Model(voided).Update("status", models.InvoiceVoided).Error)

	_, err = svc.Create(CreatePaymentInput{
		TenantID: tenant.ID, InvoiceID: &voided.ID, Amount: voided.Total, Actor: PlatformOperator(),
	})
	assert.ErrorIs(t, err, ErrConflict)

	// no payment rows survived the rejections
	var count int64
	assert.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreatePaymentForeignInvoice(t *testing.T) {
	db := newTestDB(t)
	svc := newPaymentService(db, &recordingMailer{})

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	owner := createTenant(t, db, "owner", models.TenantActive)
	other := createTenant(t, db, "other", models.TenantActive)
	invoice := seedPendingInvoice(t, db, owner, "INV-202404-0004", now.AddDate(0, 0, 10))

	// an invoice can only be settled by its own tenant
	_, err := svc.Create(CreatePaymentInput{
		TenantID: other.ID, InvoiceID: &invoice.ID, Amount: invoice.Total, Actor: TenantScoped(other.ID),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindPayments(t *testing.T) {
	db := newTestDB(t)
	svc := newPaymentService(db, &recordingMailer{})

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	first := createTenant(t, db, "first", models.TenantActive)
	second := createTenant(t, db, "second", models.TenantActive)

	p1, err := svc.Create(CreatePaymentInput{TenantID: first.ID, Amount: 1000, Actor: PlatformOperator()})
	assert.NoError(t, err)
	_, err = svc.Create(CreatePaymentInput{TenantID: second.ID, Amount: 2000, Actor: PlatformOperator()})
	assert.NoError(t, err)

	all, err := svc.FindAll(PaymentFilters{})
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.FindByTenant(first.ID)
	assert.NoError(t, err)
	assert.Len(t, scoped, 1)
	assert.Equal(t, p1.ID, scoped[0].ID)

	found, err := svc.FindOne(p1.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1000.0, found.Amount)

	_, err = svc.FindOne(999)
	assert.ErrorIs(t, err, ErrNotFound)
}
