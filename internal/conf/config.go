// config.go: settings struct for PestAlert and functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// ClassifierSettings configures the crop-health classification API.
type ClassifierSettings struct {
	BaseURL        string        // API base URL, e.g. https://api.openepi.io
	BinaryPath     string        // path of the binary (healthy/diseased) endpoint
	MultiClassPath string        // path of the multi-class disease endpoint
	PingPath       string        // path of the liveness endpoint
	Timeout        time.Duration // per-call timeout, applies to each classification call
	RateLimit      float64       // outbound requests per second, 0 disables limiting
	Burst          int           // limiter burst size
	UserAgent      string        // User-Agent header sent upstream
}

// AuthSettings configures bearer token acquisition for the classifier.
type AuthSettings struct {
	Mode         string        // "clientcredentials", "static" or "none"
	TokenURL     string        // OAuth2 token endpoint
	ClientID     string        // OAuth2 client id
	ClientSecret string        // OAuth2 client secret, may reference ${ENV}
	SecretFile   string        // file holding the client secret, wins over ClientSecret
	Scopes       []string      // requested scopes
	StaticToken  string        // token used in static mode, may reference ${ENV}
	RefreshSkew  time.Duration // refresh this long before expiry
	Timeout      time.Duration // token request timeout
}

// YrNoSettings configures the met.no locationforecast backed risk provider.
type YrNoSettings struct {
	BaseURL   string // locationforecast endpoint with lat/lon format verbs
	UserAgent string // met.no requires an identifying User-Agent
}

// RiskSettings configures the environmental risk provider.
type RiskSettings struct {
	Provider    string        // "static" or "yrno"
	StaticLevel string        // alert level returned by the static provider
	Timeout     time.Duration // provider call timeout
	CacheTTL    time.Duration // 0 disables caching
	YrNo        YrNoSettings
}

// AssetSettings configures the voice-note catalog.
type AssetSettings struct {
	Dir       string        // directory holding the voice notes
	Normal    string        // file name of the normal response
	Alert     string        // file name of the alert response
	Uncertain string        // file name of the uncertain response
	CacheTTL  time.Duration // how long loaded files stay in memory
}

// ImageSettings bounds accepted photos.
type ImageSettings struct {
	MinBytes     int // smallest accepted payload
	MaxBytes     int // largest accepted payload
	MinDimension int // smallest accepted width or height in pixels
	MaxDimension int // largest accepted width or height in pixels
	JPEGQuality  int // quality used when re-encoding non-JPEG input
}

// AnalysisSettings bounds the orchestrator stages.
type AnalysisSettings struct {
	ClassificationTimeout time.Duration // per classification call
	RiskTimeout           time.Duration // risk provider call
	AssetTimeout          time.Duration // voice-note resolution
	SinkTimeout           time.Duration // event and alert delivery
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled        bool
	Listen         string // listen address, e.g. ":8080"
	MaxUploadBytes int64  // request body limit for analyze
	Metrics        bool   // expose /metrics
}

// MQTTSettings configures analysis event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string // may reference ${ENV}
	Topic    string // topic prefix; events go to <topic>/analysis
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

// NotificationSettings configures operator push alerts.
type NotificationSettings struct {
	Enabled   bool
	URLs      []string // shoutrrr service URLs
	Title     string
	Template  string // text/template for the message body, empty uses the built-in one
	Timeout   time.Duration
	RateLimit int // alerts per minute, also the burst size
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string // may reference ${ENV}
	Environment string
}

// Settings contains all configuration options for PestAlert.
type Settings struct {
	Debug bool

	Main struct {
		Name string // instance name, used in MQTT client id and alerts
	}

	Logging      logger.LoggingConfig
	Classifier   ClassifierSettings
	Auth         AuthSettings
	Risk         RiskSettings
	Assets       AssetSettings
	Image        ImageSettings
	Analysis     AnalysisSettings
	WebServer    WebServerSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables. An empty
// configFile searches the default config paths; a missing file is not an
// error and leaves the defaults in place.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets expands ${ENV} references in credential fields and reads
// file based secrets.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"auth.clientsecret", settings.Auth.SecretFile, &settings.Auth.ClientSecret},
		{"auth.statictoken", "", &settings.Auth.StaticToken},
		{"mqtt.password", "", &settings.MQTT.Password},
		{"sentry.dsn", "", &settings.Sentry.DSN},
	}

	for _, f := range fields {
		secret, permissive, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("error resolving %s: %w", f.name, err)
		}
		if permissive {
			logger.Global().Module("conf").Warn("secret file readable by group or others",
				logger.String("setting", f.name))
		}
		*f.value = secret
	}
	return nil
}

// initViper registers defaults and environment bindings and reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_config").
			Build()
	}

	return nil
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "get_home_directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "pestalert")}, nil
	}
	return []string{".", filepath.Join(homeDir, ".config", "pestalert"), "/etc/pestalert"}, nil
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() ([]byte, error) {
	return configFiles.ReadFile("config.yaml")
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return writeFileAtomic(configPath, yamlData)
}

// WriteDefaultConfig writes the embedded default config to configPath.
// An existing file is left untouched unless overwrite is set.
func WriteDefaultConfig(configPath string, overwrite bool) error {
	if _, err := os.Stat(configPath); err == nil && !overwrite {
		return errors.Newf("config file %s already exists", configPath).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	data, err := DefaultConfigYAML()
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	return writeFileAtomic(configPath, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // best-effort cleanup after rename

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
