package models

import (
	"time"

	"gorm.io/gorm"
)

type TenantStatus string

const (
	TenantTrial     TenantStatus = "trial"
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantExpired   TenantStatus = "expired"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

type Tenant struct {
	gorm.Model
	Name          string `gorm:"not null"`
	Slug          string `gorm:"unique;not null"`
	ContactEmail  string `gorm:"not null"`
	ContactName   string
	Status        TenantStatus `gorm:"not null;default:'trial'"`
	Plan          string       `gorm:"not null;default:'free'"`
	BillingCycle  BillingCycle `gorm:"not null;default:'monthly'"`
	BillingDay    int          `gorm:"not null;default:1"` // day of month for invoice cut, 1-28
	PlanStartedAt *time.Time
	PlanExpiresAt *time.Time
	TrialEndsAt   *time.Time
	Invoices      []Invoice
	Payments      []Payment
}

type TaxApplicationType string

const (
	TaxIncluded   TaxApplicationType = "included"
	TaxAdditional TaxApplicationType = "additional"
)

type TaxConfig struct {
	gorm.Model
	Name            string             `gorm:"unique;not null"`
	Rate            float64            `gorm:"not null"` // percentage, e.g. 19 for 19%
	ApplicationType TaxApplicationType `gorm:"not null;default:'additional'"`
	IsActive        bool               `gorm:"default:true"`
	IsDefault       bool               `gorm:"default:false"`
	Description     string
}

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoided  InvoiceStatus = "voided"
)

type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

type Invoice struct {
	gorm.Model
	TenantID           uint `gorm:"not null;index"`
	Tenant             Tenant
	TaxConfigID        *uint
	TaxConfig          *TaxConfig
	TaxExempt          bool `gorm:"default:false"`
	TaxExemptReason    string
	InvoiceNumber      string        `gorm:"unique;not null"`
	Amount             float64       `gorm:"not null"`
	Tax                float64       `gorm:"not null;default:0"`
	Total              float64       `gorm:"not null"`
	Currency           string        `gorm:"not null;default:'COP'"`
	Status             InvoiceStatus `gorm:"not null;default:'pending';index"`
	DueDate            time.Time     `gorm:"not null"`
	PaidAt             *time.Time
	PeriodStart        time.Time     `gorm:"not null"`
	PeriodEnd          time.Time     `gorm:"not null"`
	Items              []InvoiceItem `gorm:"serializer:json"`
	Notes              string
	CancellationReason string
	CancelledAt        *time.Time
	PaymentLinkID      string
	PaymentLinkURL     string
	PaymentReference   string `gorm:"index"` // reference sent to the payment gateway
	Payments           []Payment
}

// InvoiceSequence backs invoice numbering: one counter row per YYYYMM period,
// incremented inside the invoice-creation transaction.
type InvoiceSequence struct {
	gorm.Model
	Period  string `gorm:"unique;not null"`
	Counter int    `gorm:"not null"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "transfer"
	MethodCard     PaymentMethod = "card"
	MethodPSE      PaymentMethod = "pse"
	MethodCash     PaymentMethod = "cash"
	MethodOther    PaymentMethod = "other"
)

type Payment struct {
	gorm.Model
	TenantID             uint `gorm:"not null;index"`
	Tenant               Tenant
	InvoiceID            *uint
	Invoice              *Invoice
	Amount               float64       `gorm:"not null"`
	Currency             string        `gorm:"not null;default:'COP'"`
	Status               PaymentStatus `gorm:"not null;default:'pending'"`
	PaymentMethod        PaymentMethod `gorm:"not null;default:'transfer'"`
	PaymentDate          time.Time     `gorm:"not null"`
	Notes                string
	GatewayTransactionID *string `gorm:"uniqueIndex"` // null for manual entries
	GatewayPaymentMethod string
}

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

type PaymentReminder struct {
	gorm.Model
	TenantID      uint `gorm:"not null;index"`
	Tenant        Tenant
	InvoiceID     uint `gorm:"not null;index"`
	Invoice       Invoice
	DaysBeforeDue int            `gorm:"not null"`
	ScheduledDate time.Time      `gorm:"not null"`
	Status        ReminderStatus `gorm:"not null;default:'pending';index"`
	SentAt        *time.Time
	ErrorMessage  string
}

type BillingAction string

const (
	ActionInvoiceCreated   BillingAction = "invoice_created"
	ActionPaymentReceived  BillingAction = "payment_received"
	ActionPaymentFailed    BillingAction = "payment_failed"
	ActionReminderSent     BillingAction = "reminder_sent"
	ActionTenantSuspended  BillingAction = "tenant_suspended"
	ActionTenantActivated  BillingAction = "tenant_activated"
	ActionInvoiceCancelled BillingAction = "invoice_cancelled"
)

// BillingHistory is append-only: rows are never updated or deleted.
type BillingHistory struct {
	gorm.Model
	TenantID    uint `gorm:"not null;index"`
	Tenant      Tenant
	Action      BillingAction `gorm:"not null"`
	Description string        `gorm:"not null"`
	Metadata    map[string]any `gorm:"serializer:json"`
	PerformedBy string
}
