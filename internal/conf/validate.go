// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pestalert/pestalert-go/internal/errors"
)

// Accepted values for enumerated settings.
const (
	AuthModeClientCredentials = "clientcredentials"
	AuthModeStatic            = "static"
	AuthModeNone              = "none"

	RiskProviderStatic = "static"
	RiskProviderYrNo   = "yrno"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ErrorCategory implements errors.CategorizedError.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateClassifierSettings,
		validateAuthSettings,
		validateRiskSettings,
		validateImageSettings,
		validateAnalysisSettings,
		validateMQTTSettings,
		validateNotificationSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateClassifierSettings(s *Settings) error {
	c := &s.Classifier
	if err := validateHTTPURL("classifier.baseurl", c.BaseURL); err != nil {
		return err
	}
	if c.BinaryPath == "" || c.MultiClassPath == "" {
		return fmt.Errorf("classifier endpoint paths must not be empty")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("classifier.ratelimit must not be negative, got %g", c.RateLimit)
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		return fmt.Errorf("classifier.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func validateAuthSettings(s *Settings) error {
	a := &s.Auth
	switch a.Mode {
	case AuthModeNone:
		return nil
	case AuthModeStatic:
		if a.StaticToken == "" {
			return fmt.Errorf("auth.statictoken is required when auth.mode is %s", AuthModeStatic)
		}
		return nil
	case AuthModeClientCredentials:
		// Missing credentials are reported by the status check rather than
		// failing startup, so the service can still answer in degraded mode.
		return validateHTTPURL("auth.tokenurl", a.TokenURL)
	default:
		return fmt.Errorf("auth.mode must be %s, %s or %s, got '%s'",
			AuthModeClientCredentials, AuthModeStatic, AuthModeNone, a.Mode)
	}
}

func validateRiskSettings(s *Settings) error {
	r := &s.Risk
	switch r.Provider {
	case RiskProviderStatic:
		switch strings.ToUpper(r.StaticLevel) {
		case "LOW", "MEDIUM", "HIGH", "CRITICAL":
			return nil
		}
		return fmt.Errorf("risk.staticlevel must be LOW, MEDIUM, HIGH or CRITICAL, got '%s'", r.StaticLevel)
	case RiskProviderYrNo:
		if !strings.Contains(r.YrNo.BaseURL, "%") {
			return fmt.Errorf("risk.yrno.baseurl must contain lat/lon format verbs")
		}
		if r.YrNo.UserAgent == "" {
			return fmt.Errorf("risk.yrno.useragent is required by the met.no terms of service")
		}
		return nil
	default:
		return fmt.Errorf("risk.provider must be %s or %s, got '%s'", RiskProviderStatic, RiskProviderYrNo, r.Provider)
	}
}

func validateImageSettings(s *Settings) error {
	i := &s.Image
	if i.MinBytes < 0 || i.MaxBytes <= 0 || i.MinBytes >= i.MaxBytes {
		return fmt.Errorf("image byte bounds invalid: min %d, max %d", i.MinBytes, i.MaxBytes)
	}
	if i.MinDimension < 1 || i.MinDimension > i.MaxDimension {
		return fmt.Errorf("image dimension bounds invalid: min %d, max %d", i.MinDimension, i.MaxDimension)
	}
	if i.JPEGQuality < 1 || i.JPEGQuality > 100 {
		return fmt.Errorf("image.jpegquality must be between 1 and 100, got %d", i.JPEGQuality)
	}
	return nil
}

func validateAnalysisSettings(s *Settings) error {
	a := &s.Analysis
	if a.ClassificationTimeout <= 0 || a.RiskTimeout <= 0 || a.AssetTimeout <= 0 || a.SinkTimeout <= 0 {
		return fmt.Errorf("analysis timeouts must be positive")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker must be a URL such as tcp://host:1883, got '%s'", m.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt.broker has unsupported scheme '%s'", u.Scheme)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	n := &s.Notification
	if n.Enabled && len(n.URLs) == 0 {
		return fmt.Errorf("notification.urls must list at least one service URL when notifications are enabled")
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got '%s'", key, value)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
