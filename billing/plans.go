package billing

import "factura/models"

// PlanConfig is the static plan catalog. Prices are in COP.
type PlanConfig struct {
	ID           string
	Name         string
	Description  string
	PriceMonthly float64
	PriceAnnual  float64
}

const FreePlan = "free"

var plans = map[string]PlanConfig{
	"free": {
		ID:          "free",
		Name:        "Gratuito",
		Description: "Prueba gratis por 7 días",
	},
	"basic": {
		ID:           "basic",
		Name:         "Básico",
		Description:  "Para pequeñas clínicas y consultorios",
		PriceMonthly: 89900,
		PriceAnnual:  895404,
	},
	"professional": {
		ID:           "professional",
		Name:         "Emprendedor",
		PriceMonthly: 119900,
		PriceAnnual:  1194202,
	},
	"enterprise": {
		ID:           "enterprise",
		Name:         "Plus",
		PriceMonthly: 149900,
		PriceAnnual:  1493004,
	},
	"custom": {
		ID:           "custom",
		Name:         "Empresarial",
		PriceMonthly: 189900,
		PriceAnnual:  1891404,
	},
}

func GetPlanConfig(planID string) (PlanConfig, bool) {
	p, ok := plans[planID]
	return p, ok
}

func PriceFor(planID string, cycle models.BillingCycle) float64 {
	p, ok := plans[planID]
	if !ok {
		return 0
	}
	if cycle == models.CycleAnnual {
		return p.PriceAnnual
	}
	return p.PriceMonthly
}
