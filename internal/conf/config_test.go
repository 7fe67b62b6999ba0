package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/errors"
)

// loadFrom resets viper and loads settings from the given YAML body.
func loadFrom(t *testing.T, body string) (*Settings, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return Load(path)
}

func TestLoadDefaults(t *testing.T) {
	s, err := loadFrom(t, "debug: false\n")
	require.NoError(t, err)

	assert.Equal(t, DefaultClassifierBaseURL, s.Classifier.BaseURL)
	assert.Equal(t, DefaultBinaryPath, s.Classifier.BinaryPath)
	assert.Equal(t, 30*time.Second, s.Analysis.ClassificationTimeout)
	assert.Equal(t, 5*time.Second, s.Analysis.RiskTimeout)
	assert.Equal(t, "Reponse.mp3", s.Assets.Normal)
	assert.Equal(t, "Alerte.mp3", s.Assets.Alert)
	assert.Equal(t, "Incertaine.mp3", s.Assets.Uncertain)
	assert.Equal(t, RiskProviderStatic, s.Risk.Provider)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	assert.Equal(t, 30, s.Notification.RateLimit)
	assert.Same(t, s, GetSettings())
}

func TestLoadOverridesFromFile(t *testing.T) {
	s, err := loadFrom(t, `
classifier:
  baseurl: http://classifier.local:9000
  timeout: 3s
risk:
  provider: yrno
logging:
  default_level: debug
  module_levels:
    classifier: trace
analysis:
  classificationtimeout: 2s
mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 2
`)
	require.NoError(t, err)

	assert.Equal(t, "http://classifier.local:9000", s.Classifier.BaseURL)
	assert.Equal(t, 3*time.Second, s.Classifier.Timeout)
	assert.Equal(t, RiskProviderYrNo, s.Risk.Provider)
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
	assert.Equal(t, "trace", s.Logging.ModuleLevels["classifier"])
	assert.Equal(t, 2*time.Second, s.Analysis.ClassificationTimeout)
	assert.True(t, s.MQTT.Enabled)
	assert.Equal(t, byte(2), s.MQTT.QoS)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PESTALERT_CLIENT_ID", "client-from-env")
	t.Setenv("PESTALERT_RISK_PROVIDER", "yrno")

	s, err := loadFrom(t, "debug: true\n")
	require.NoError(t, err)
	assert.Equal(t, "client-from-env", s.Auth.ClientID)
	assert.Equal(t, RiskProviderYrNo, s.Risk.Provider)
	assert.True(t, s.Debug)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("PESTALERT_RISK_PROVIDER", "random")

	_, err := loadFrom(t, "debug: false\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PESTALERT_RISK_PROVIDER")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := loadFrom(t, `
auth:
  mode: static
image:
  jpegquality: 0
`)
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestWriteDefaultConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))
	require.Error(t, WriteDefaultConfig(path, false), "existing file must not be overwritten")
	require.NoError(t, WriteDefaultConfig(path, true))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pestalert", s.Main.Name)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	s, err := loadFrom(t, "main:\n  name: field-station\n")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, s))

	viper.Reset()
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "field-station", reloaded.Main.Name)
	assert.Equal(t, s.Analysis, reloaded.Analysis)
}

func TestLoadResolvesSecrets(t *testing.T) {
	t.Setenv("PESTALERT_TEST_MQTT_PASSWORD", "broker-pass")
	secretPath := filepath.Join(t.TempDir(), "client_secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("from-file\n"), 0o600))

	s, err := loadFrom(t, `
auth:
  clientid: bot
  clientsecret: ignored-when-file-set
  secretfile: `+secretPath+`
mqtt:
  password: ${PESTALERT_TEST_MQTT_PASSWORD}
`)
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.Auth.ClientSecret)
	assert.Equal(t, "broker-pass", s.MQTT.Password)
}

func TestLoadRejectsUnresolvedSecret(t *testing.T) {
	_, err := loadFrom(t, "sentry:\n  dsn: ${PESTALERT_TEST_UNSET_DSN}\n")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
