package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesAppealServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "APPEAL_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "APPEAL_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9191")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9191" {
		t.Fatalf("expected PORT to win over SERVER_PORT, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_DefaultConfidenceThreshold(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "CITATION_CONFIDENCE_THRESHOLD")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CitationConfidenceThreshold != 0.5 {
		t.Fatalf("expected default confidence threshold 0.5, got %f", cfg.CitationConfidenceThreshold)
	}
}

func TestLoadConfig_AppealFeeDollarsAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "APPEAL_FEE_CENTS")
	setEnvWithCleanup(t, "APPEAL_FEE", "24.50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppealFeeCents != 2450 {
		t.Fatalf("expected APPEAL_FEE in dollars converted to 2450 cents, got %d", cfg.AppealFeeCents)
	}
}

func TestLoadConfig_ClampsOutOfRangeValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CITATION_CONFIDENCE_THRESHOLD", "1.4")
	setEnvWithCleanup(t, "FULFILLMENT_MAX_ATTEMPTS", "-2")
	setEnvWithCleanup(t, "CHECKOUT_CLAIM_STALE_MINUTES", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CitationConfidenceThreshold != 1 {
		t.Fatalf("expected threshold capped at 1, got %f", cfg.CitationConfidenceThreshold)
	}
	if cfg.FulfillmentMaxAttempts != 5 {
		t.Fatalf("expected negative max attempts coerced to default 5, got %d", cfg.FulfillmentMaxAttempts)
	}
	if cfg.CheckoutClaimStaleMinutes != 2 {
		t.Fatalf("expected zero stale window coerced to default 2, got %d", cfg.CheckoutClaimStaleMinutes)
	}
}

func TestAllowedOrigins_SplitsAndTrims(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://curbappeal.com , https://staging.curbappeal.com ,,"}

	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %v", origins)
	}
	if origins[0] != "https://curbappeal.com" || origins[1] != "https://staging.curbappeal.com" {
		t.Fatalf("expected trimmed origins, got %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
