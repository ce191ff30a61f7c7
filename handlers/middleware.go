package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"factura/billing"
	"factura/database"
	"factura/models"
)

// ActorMiddleware resolves who is acting: the platform itself (sweeps,
// operators) via the X-Platform-Operator header, or a tenant via the
// tenant_id query parameter. Request authentication happens upstream; this
// only establishes attribution and scoping.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Platform-Operator") == "true" {
			c.Set("actor", billing.PlatformOperator())
			c.Next()
			return
		}

		tenantIDStr := c.Query("tenant_id")
		tenantID, err := strconv.ParseUint(tenantIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing tenant ID"})
			c.Abort()
			return
		}

		var tenant models.Tenant
		if err := database.DB.First(&tenant, tenantID).Error; err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Unknown tenant"})
			c.Abort()
			return
		}

		c.Set("actor", billing.TenantScoped(uint(tenantID)))
		c.Next()
	}
}

func actorFrom(c *gin.Context) billing.Actor {
	if v, ok := c.Get("actor"); ok {
		if actor, ok := v.(billing.Actor); ok {
			return actor
		}
	}
	return billing.PlatformOperator()
}
