package billing

import "fmt"

// Actor identifies who performed a billing action: the platform itself
// (sweeps, webhooks) or someone acting within a tenant.
type Actor struct {
	tenantID uint
	platform bool
}

func PlatformOperator() Actor {
	return Actor{platform: true}
}

func TenantScoped(tenantID uint) Actor {
	return Actor{tenantID: tenantID}
}

func (a Actor) IsPlatform() bool { return a.platform }

func (a Actor) TenantID() (uint, bool) {
	if a.platform {
		return 0, false
	}
	return a.tenantID, true
}

// String is what lands in billing_history.performed_by.
func (a Actor) String() string {
	if a.platform {
		return "platform"
	}
	return fmt.Sprintf("tenant:%d", a.tenantID)
}
