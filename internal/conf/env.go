// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PESTALERT_DEBUG", validateEnvBool},
		{"logging.default_level", "PESTALERT_LOG_LEVEL", validateEnvLogLevel},

		// Classification API and credentials
		{"classifier.baseurl", "PESTALERT_CLASSIFIER_URL", validateEnvURL},
		{"classifier.timeout", "PESTALERT_CLASSIFIER_TIMEOUT", validateEnvDuration},
		{"auth.mode", "PESTALERT_AUTH_MODE", validateEnvAuthMode},
		{"auth.tokenurl", "PESTALERT_AUTH_TOKEN_URL", validateEnvURL},
		{"auth.clientid", "PESTALERT_CLIENT_ID", nil},
		{"auth.clientsecret", "PESTALERT_CLIENT_SECRET", nil},
		{"auth.secretfile", "PESTALERT_CLIENT_SECRET_FILE", nil},
		{"auth.statictoken", "PESTALERT_STATIC_TOKEN", nil},

		// Risk provider
		{"risk.provider", "PESTALERT_RISK_PROVIDER", validateEnvRiskProvider},

		// Assets
		{"assets.dir", "PESTALERT_ASSETS_DIR", nil},

		// Outer surfaces
		{"webserver.listen", "PESTALERT_LISTEN", nil},
		{"mqtt.broker", "PESTALERT_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "PESTALERT_MQTT_USERNAME", nil},
		{"mqtt.password", "PESTALERT_MQTT_PASSWORD", nil},
		{"sentry.dsn", "PESTALERT_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log level must be one of trace, debug, info, warn, error, got '%s'", value)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host, got '%s'", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvAuthMode(value string) error {
	switch value {
	case AuthModeClientCredentials, AuthModeStatic, AuthModeNone:
		return nil
	}
	return fmt.Errorf("auth mode must be %s, %s or %s, got '%s'", AuthModeClientCredentials, AuthModeStatic, AuthModeNone, value)
}

func validateEnvRiskProvider(value string) error {
	switch value {
	case RiskProviderStatic, RiskProviderYrNo:
		return nil
	}
	return fmt.Errorf("risk provider must be %s or %s, got '%s'", RiskProviderStatic, RiskProviderYrNo, value)
}
