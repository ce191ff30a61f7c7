package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Gateway holds the Bold Colombia credentials and endpoints.
type Gateway struct {
	APIURL        string
	APIKey        string
	SecretKey     string
	MerchantID    string
	WebhookSecret string
	SuccessURL    string
}

// Billing is the externally-configured billing behavior. It is loaded once at
// startup and injected into the services, never read from the environment at
// call time.
type Billing struct {
	Currency        string
	GracePeriodDays int
	ReminderOffsets []int // days before due date, e.g. 7,5,3,1
	TrialDays       int
	Gateway         Gateway
}

// Load reads .env (if present) and the environment and returns the billing
// configuration with defaults applied.
func Load() Billing {
	_ = godotenv.Load()

	return Billing{
		Currency:        getenv("BILLING_CURRENCY", "COP"),
		GracePeriodDays: getint("BILLING_GRACE_PERIOD_DAYS", 3),
		ReminderOffsets: getints("BILLING_REMINDER_DAYS", []int{7, 5, 3, 1}),
		TrialDays:       getint("BILLING_TRIAL_DAYS", 7),
		Gateway: Gateway{
			APIURL:        getenv("BOLD_API_URL", "https://api.online.payments.bold.co"),
			APIKey:        os.Getenv("BOLD_API_KEY"),
			SecretKey:     os.Getenv("BOLD_SECRET_KEY"),
			MerchantID:    os.Getenv("BOLD_MERCHANT_ID"),
			WebhookSecret: os.Getenv("BOLD_WEBHOOK_SECRET"),
			SuccessURL:    os.Getenv("BOLD_SUCCESS_URL"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getints(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
