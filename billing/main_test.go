package billing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factura/config"
	"factura/mail"
	"factura/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&models.Tenant{},
		&models.TaxConfig{},
		&models.Invoice{},
		&models.InvoiceSequence{},
		&models.Payment{},
		&models.PaymentReminder{},
		&models.BillingHistory{},
	)
	assert.NoError(t, err)
	return db
}

func testConfig() config.Billing {
	return config.Billing{
		Currency:        "COP",
		GracePeriodDays: 3,
		ReminderOffsets: []int{7, 5, 3, 1},
		TrialDays:       7,
	}
}

// recordingMailer captures every send so tests can assert on notification
// intent without real delivery.
type recordingMailer struct {
	mu        sync.Mutex
	Invoices  []string
	Reminders []string
	Suspended []string
	Activated []string
	Confirmed []string
}

func (m *recordingMailer) SendInvoiceEmail(tenant *models.Tenant, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices = append(m.Invoices, invoice.InvoiceNumber)
	return nil
}

func (m *recordingMailer) SendPaymentReminderEmail(tenant *models.Tenant, invoice *models.Invoice, daysBeforeDue int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reminders = append(m.Reminders, invoice.InvoiceNumber)
	return nil
}

func (m *recordingMailer) SendTenantSuspendedEmail(tenant *models.Tenant, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Suspended = append(m.Suspended, tenant.Slug)
	return nil
}

func (m *recordingMailer) SendTenantActivatedEmail(tenant *models.Tenant, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activated = append(m.Activated, tenant.Slug)
	return nil
}

func (m *recordingMailer) SendPaymentConfirmationEmail(tenant *models.Tenant, payment *models.Payment, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Confirmed = append(m.Confirmed, tenant.Slug)
	return nil
}

var _ mail.Mailer = (*recordingMailer)(nil)

func createTenant(t *testing.T, db *gorm.DB, slug string, status models.TenantStatus) *models.Tenant {
	tenant := models.Tenant{
		Name:         "Clinic " + slug,
		Slug:         slug,
		ContactEmail: slug + "@example.com",
		ContactName:  "Dr. Test",
		Status:       status,
		Plan:         "basic",
		BillingCycle: models.CycleMonthly,
		BillingDay:   1,
	}
	assert.NoError(t, db.Create(&tenant).Error)
	return &tenant
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func historyActions(t *testing.T, db *gorm.DB, tenantID uint) []models.BillingAction {
	var entries []models.BillingHistory
	assert.NoError(t, db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&entries).Error)
	actions := make([]models.BillingAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
