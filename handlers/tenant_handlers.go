package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"factura/billing"
	"factura/database"
	"factura/models"
)

type CreateTenantRequest struct {
	Name         string `json:"name" binding:"required"`
	Slug         string `json:"slug" binding:"required"`
	ContactEmail string `json:"contact_email" binding:"required,email"`
	ContactName  string `json:"contact_name"`
	Plan         string `json:"plan"`
	BillingCycle string `json:"billing_cycle"`
	BillingDay   int    `json:"billing_day"`
}

// CreateTenant provisions a tenant. Free-plan tenants start a trial; paid
// plans start active with an open first cycle.
func CreateTenant(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "CreateTenant")
	defer span.End()

	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Plan == "" {
		req.Plan = billing.FreePlan
	}
	if _, ok := billing.GetPlanConfig(req.Plan); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
		return
	}
	cycle := models.BillingCycle(req.BillingCycle)
	if cycle == "" {
		cycle = models.CycleMonthly
	}
	if cycle != models.CycleMonthly && cycle != models.CycleAnnual {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Billing cycle must be monthly or annual"})
		return
	}
	if req.BillingDay < 1 || req.BillingDay > 28 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Billing day must be between 1 and 28"})
		return
	}

	var existing models.Tenant
	if err := database.DB.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A tenant with this slug already exists"})
		return
	} else if err != gorm.ErrRecordNotFound {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check for existing tenant"})
		return
	}

	now := time.Now()
	tenant := models.Tenant{
		Name:         req.Name,
		Slug:         req.Slug,
		ContactEmail: req.ContactEmail,
		ContactName:  req.ContactName,
		Plan:         req.Plan,
		BillingCycle: cycle,
		BillingDay:   req.BillingDay,
	}
	if req.Plan == billing.FreePlan {
		trialEnds := now.AddDate(0, 0, Cfg.TrialDays)
		tenant.Status = models.TenantTrial
		tenant.TrialEndsAt = &trialEnds
	} else {
		expires := now.AddDate(0, 1, 0)
		if cycle == models.CycleAnnual {
			expires = now.AddDate(1, 0, 0)
		}
		tenant.Status = models.TenantActive
		tenant.PlanStartedAt = &now
		tenant.PlanExpiresAt = &expires
	}

	if err := database.DB.Create(&tenant).Error; err != nil {
		span.SetError(err.Error(), "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func GetTenant(c *gin.Context) {
	_, span := Tracer.StartSpan(c.Request.Context(), "GetTenant")
	defer span.End()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	var tenant models.Tenant
	if err := database.DB.First(&tenant, id).Error; err != nil {
		span.SetError(err.Error(), "")
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tenant"})
		return
	}
	c.JSON(http.StatusOK, tenant)
}
