/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the appeal-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string  `mapstructure:"DATABASE_URL"`
	RedisURL                    string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix        string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                 string  `mapstructure:"RABBITMQ_URL"`
	StripeAPIBaseURL            string  `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey             string  `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret         string  `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	LobAPIBaseURL               string  `mapstructure:"LOB_API_BASE_URL"`
	LobAPIKey                   string  `mapstructure:"LOB_API_KEY"`
	InternalAPIKey              string  `mapstructure:"INTERNAL_API_KEY"`
	IntakeTokenSecret           string  `mapstructure:"INTAKE_TOKEN_SECRET"`
	IntakeTokenTTLHours         int     `mapstructure:"INTAKE_TOKEN_TTL_HOURS"`
	AppealFeeCents              int64   `mapstructure:"APPEAL_FEE_CENTS"`
	CertifiedUpgradeCents       int64   `mapstructure:"CERTIFIED_UPGRADE_CENTS"`
	CheckoutCurrency            string  `mapstructure:"CHECKOUT_CURRENCY"`
	CheckoutSuccessURL          string  `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL           string  `mapstructure:"CHECKOUT_CANCEL_URL"`
	CheckoutClaimStaleMinutes   int     `mapstructure:"CHECKOUT_CLAIM_STALE_MINUTES"`
	CitationConfidenceThreshold float64 `mapstructure:"CITATION_CONFIDENCE_THRESHOLD"`
	ExternalCallTimeoutSeconds  int     `mapstructure:"EXTERNAL_CALL_TIMEOUT_SECONDS"`
	SweepSchedule               string  `mapstructure:"FULFILLMENT_SWEEP_SCHEDULE"`
	SweepBatchSize              int     `mapstructure:"FULFILLMENT_SWEEP_BATCH_SIZE"`
	FulfillmentMaxAttempts      int     `mapstructure:"FULFILLMENT_MAX_ATTEMPTS"`
	FulfillmentStaleMinutes     int     `mapstructure:"FULFILLMENT_STALE_MINUTES"`
	CitationRateLimitPerMinute  int     `mapstructure:"CITATION_RATE_LIMIT_PER_MINUTE"`
	CheckoutRateLimitPerMinute  int     `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	ReturnName                  string  `mapstructure:"RETURN_NAME"`
	ReturnAddressLine1          string  `mapstructure:"RETURN_ADDRESS_LINE1"`
	ReturnAddressLine2          string  `mapstructure:"RETURN_ADDRESS_LINE2"`
	ReturnAddressCity           string  `mapstructure:"RETURN_ADDRESS_CITY"`
	ReturnAddressState          string  `mapstructure:"RETURN_ADDRESS_STATE"`
	ReturnAddressPostalCode     string  `mapstructure:"RETURN_ADDRESS_POSTAL_CODE"`
	CORSAllowedOrigins          string  `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// AllowedOrigins splits the comma-separated CORS origin list, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("LOB_API_BASE_URL", "https://api.lob.com")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "curbappeal:rate_limit")
	viper.SetDefault("INTAKE_TOKEN_TTL_HOURS", 72)
	viper.SetDefault("APPEAL_FEE_CENTS", 1900)
	viper.SetDefault("CERTIFIED_UPGRADE_CENTS", 800)
	viper.SetDefault("CHECKOUT_CURRENCY", "usd")
	viper.SetDefault("CHECKOUT_SUCCESS_URL", "https://curbappeal.com/appeal/success")
	viper.SetDefault("CHECKOUT_CANCEL_URL", "https://curbappeal.com/appeal/payment")
	viper.SetDefault("CHECKOUT_CLAIM_STALE_MINUTES", 2)
	viper.SetDefault("CITATION_CONFIDENCE_THRESHOLD", 0.5)
	viper.SetDefault("EXTERNAL_CALL_TIMEOUT_SECONDS", 15)
	viper.SetDefault("FULFILLMENT_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("FULFILLMENT_SWEEP_BATCH_SIZE", 25)
	viper.SetDefault("FULFILLMENT_MAX_ATTEMPTS", 5)
	viper.SetDefault("FULFILLMENT_STALE_MINUTES", 10)
	viper.SetDefault("CITATION_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("LOB_API_BASE_URL")
	_ = viper.BindEnv("LOB_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "APPEAL_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTAKE_TOKEN_SECRET")
	_ = viper.BindEnv("INTAKE_TOKEN_TTL_HOURS")
	_ = viper.BindEnv("APPEAL_FEE_CENTS")
	_ = viper.BindEnv("APPEAL_FEE")
	_ = viper.BindEnv("CERTIFIED_UPGRADE_CENTS")
	_ = viper.BindEnv("CERTIFIED_UPGRADE")
	_ = viper.BindEnv("CHECKOUT_CURRENCY")
	_ = viper.BindEnv("CHECKOUT_SUCCESS_URL")
	_ = viper.BindEnv("CHECKOUT_CANCEL_URL")
	_ = viper.BindEnv("CHECKOUT_CLAIM_STALE_MINUTES")
	_ = viper.BindEnv("CITATION_CONFIDENCE_THRESHOLD")
	_ = viper.BindEnv("EXTERNAL_CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("FULFILLMENT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("FULFILLMENT_SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("FULFILLMENT_MAX_ATTEMPTS")
	_ = viper.BindEnv("FULFILLMENT_STALE_MINUTES")
	_ = viper.BindEnv("CITATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RETURN_NAME")
	_ = viper.BindEnv("RETURN_ADDRESS_LINE1")
	_ = viper.BindEnv("RETURN_ADDRESS_LINE2")
	_ = viper.BindEnv("RETURN_ADDRESS_CITY")
	_ = viper.BindEnv("RETURN_ADDRESS_STATE")
	_ = viper.BindEnv("RETURN_ADDRESS_POSTAL_CODE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("APPEAL_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "curbappeal:rate_limit"
	}

	// Allow specifying the fee in whole dollars via APPEAL_FEE.
	if viper.IsSet("APPEAL_FEE") {
		feeStr := strings.TrimSpace(viper.GetString("APPEAL_FEE"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid APPEAL_FEE\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.AppealFeeCents = int64(math.Round(feeValue * 100))
			}
		}
	}
	if config.AppealFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative appeal fee configured; coercing to zero\" fee_cents=%d", config.AppealFeeCents)
		config.AppealFeeCents = 0
	}

	// Allow specifying the certified upgrade in whole dollars via CERTIFIED_UPGRADE.
	if viper.IsSet("CERTIFIED_UPGRADE") {
		feeStr := strings.TrimSpace(viper.GetString("CERTIFIED_UPGRADE"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid CERTIFIED_UPGRADE\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.CertifiedUpgradeCents = int64(math.Round(feeValue * 100))
			}
		}
	}
	if config.CertifiedUpgradeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative certified upgrade configured; coercing to zero\" fee_cents=%d", config.CertifiedUpgradeCents)
		config.CertifiedUpgradeCents = 0
	}

	config.CheckoutCurrency = strings.ToLower(strings.TrimSpace(config.CheckoutCurrency))
	if config.CheckoutCurrency == "" {
		config.CheckoutCurrency = "usd"
	}

	if config.CitationConfidenceThreshold < 0 {
		log.Printf("level=warn component=config msg=\"negative confidence threshold; using default\" threshold=%f", config.CitationConfidenceThreshold)
		config.CitationConfidenceThreshold = 0.5
	}
	if config.CitationConfidenceThreshold > 1 {
		log.Printf("level=warn component=config msg=\"confidence threshold above 1; capping\" threshold=%f", config.CitationConfidenceThreshold)
		config.CitationConfidenceThreshold = 1
	}

	config.SweepSchedule = strings.TrimSpace(config.SweepSchedule)
	if config.SweepSchedule == "" {
		config.SweepSchedule = "*/5 * * * *"
	}

	if config.IntakeTokenTTLHours <= 0 {
		config.IntakeTokenTTLHours = 72
	}
	if config.ExternalCallTimeoutSeconds <= 0 {
		config.ExternalCallTimeoutSeconds = 15
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = 25
	}
	if config.FulfillmentMaxAttempts <= 0 {
		config.FulfillmentMaxAttempts = 5
	}
	if config.FulfillmentStaleMinutes <= 0 {
		config.FulfillmentStaleMinutes = 10
	}
	if config.CheckoutClaimStaleMinutes <= 0 {
		config.CheckoutClaimStaleMinutes = 2
	}
	if config.CitationRateLimitPerMinute <= 0 {
		config.CitationRateLimitPerMinute = 30
	}
	if config.CheckoutRateLimitPerMinute <= 0 {
		config.CheckoutRateLimitPerMinute = 10
	}

	if partialReturnAddress(config) {
		log.Printf("level=warn component=config msg=\"return address is incomplete; letters will carry the appellant's address as sender\"")
	}

	return
}

// partialReturnAddress reports a configured-but-unusable envelope sender:
// some RETURN_* values present without the full name/line1/city/state/postal set.
func partialReturnAddress(c Config) bool {
	any := c.ReturnName != "" || c.ReturnAddressLine1 != "" || c.ReturnAddressLine2 != "" ||
		c.ReturnAddressCity != "" || c.ReturnAddressState != "" || c.ReturnAddressPostalCode != ""
	complete := c.ReturnName != "" && c.ReturnAddressLine1 != "" &&
		c.ReturnAddressCity != "" && c.ReturnAddressState != "" && c.ReturnAddressPostalCode != ""
	return any && !complete
}
