package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config carries everything the server needs, sourced from environment
// variables with sensible defaults for local development.
type Config struct {
	Port   string
	DBPath string

	WebhookSecret    string
	WebhookTolerance time.Duration

	// PlatformFeeRate is the default fee fraction charged to the buyer
	// on top of the subtotal (0.03 = 3%). PlanFeeRates overrides it per
	// vendor subscription plan.
	PlatformFeeRate decimal.Decimal
	PlanFeeRates    map[string]decimal.Decimal

	PendingPaymentTimeout time.Duration
	SweepInterval         time.Duration

	LogLevel string
	SeedPath string
}

// Load reads configuration from the environment via viper.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("marketplace")
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "marketplace.db")
	v.SetDefault("webhook_secret", "dev-webhook-secret")
	v.SetDefault("webhook_tolerance", "5m")
	v.SetDefault("platform_fee_rate", "0.03")
	v.SetDefault("plan_fee_rates", map[string]string{
		"standard": "0.03",
		"pro":      "0.02",
	})
	v.SetDefault("pending_payment_timeout", "48h")
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("log_level", "info")
	v.SetDefault("seed_path", "testdata/products.json")

	feeRate, err := decimal.NewFromString(v.GetString("platform_fee_rate"))
	if err != nil {
		return nil, fmt.Errorf("parse platform_fee_rate: %w", err)
	}

	planRates := make(map[string]decimal.Decimal)
	for plan, raw := range v.GetStringMapString("plan_fee_rates") {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse plan rate %q: %w", plan, err)
		}
		planRates[plan] = rate
	}

	cfg := &Config{
		Port:                  v.GetString("port"),
		DBPath:                v.GetString("db_path"),
		WebhookSecret:         v.GetString("webhook_secret"),
		WebhookTolerance:      v.GetDuration("webhook_tolerance"),
		PlatformFeeRate:       feeRate,
		PlanFeeRates:          planRates,
		PendingPaymentTimeout: v.GetDuration("pending_payment_timeout"),
		SweepInterval:         v.GetDuration("sweep_interval"),
		LogLevel:              v.GetString("log_level"),
		SeedPath:              v.GetString("seed_path"),
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook secret must not be empty")
	}
	return cfg, nil
}
