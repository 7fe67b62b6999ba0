// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default endpoints and file names.
const (
	DefaultClassifierBaseURL = "https://api.openepi.io"
	DefaultBinaryPath        = "/crop-health/predictions/binary"
	DefaultMultiClassPath    = "/crop-health/predictions/multi-HLT"
	DefaultPingPath          = "/crop-health/ping"
	DefaultTokenURL          = "https://auth.openepi.io/realms/openepi/protocol/openid-connect/token"
	DefaultYrNoBaseURL       = "https://api.met.no/weatherapi/locationforecast/2.0/compact?lat=%.3f&lon=%.3f"
	DefaultUserAgent         = "pestalert-go (+https://github.com/pestalert/pestalert-go)"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "pestalert")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/pestalert.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("classifier.baseurl", DefaultClassifierBaseURL)
	viper.SetDefault("classifier.binarypath", DefaultBinaryPath)
	viper.SetDefault("classifier.multiclasspath", DefaultMultiClassPath)
	viper.SetDefault("classifier.pingpath", DefaultPingPath)
	viper.SetDefault("classifier.timeout", 30*time.Second)
	viper.SetDefault("classifier.ratelimit", 5.0)
	viper.SetDefault("classifier.burst", 4)
	viper.SetDefault("classifier.useragent", DefaultUserAgent)

	viper.SetDefault("auth.mode", "clientcredentials")
	viper.SetDefault("auth.tokenurl", DefaultTokenURL)
	viper.SetDefault("auth.clientid", "")
	viper.SetDefault("auth.clientsecret", "")
	viper.SetDefault("auth.secretfile", "")
	viper.SetDefault("auth.scopes", []string{})
	viper.SetDefault("auth.statictoken", "")
	viper.SetDefault("auth.refreshskew", 30*time.Second)
	viper.SetDefault("auth.timeout", 10*time.Second)

	viper.SetDefault("risk.provider", "static")
	viper.SetDefault("risk.staticlevel", "LOW")
	viper.SetDefault("risk.timeout", 5*time.Second)
	viper.SetDefault("risk.cachettl", 30*time.Minute)
	viper.SetDefault("risk.yrno.baseurl", DefaultYrNoBaseURL)
	viper.SetDefault("risk.yrno.useragent", DefaultUserAgent)

	viper.SetDefault("assets.dir", "assets/audio")
	viper.SetDefault("assets.normal", "Reponse.mp3")
	viper.SetDefault("assets.alert", "Alerte.mp3")
	viper.SetDefault("assets.uncertain", "Incertaine.mp3")
	viper.SetDefault("assets.cachettl", 10*time.Minute)

	viper.SetDefault("image.minbytes", 1024)
	viper.SetDefault("image.maxbytes", 10*1024*1024)
	viper.SetDefault("image.mindimension", 64)
	viper.SetDefault("image.maxdimension", 8192)
	viper.SetDefault("image.jpegquality", 90)

	viper.SetDefault("analysis.classificationtimeout", 30*time.Second)
	viper.SetDefault("analysis.risktimeout", 5*time.Second)
	viper.SetDefault("analysis.assettimeout", 2*time.Second)
	viper.SetDefault("analysis.sinktimeout", 5*time.Second)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.maxuploadbytes", 12*1024*1024)
	viper.SetDefault("webserver.metrics", true)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.topic", "pestalert")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.timeout", 5*time.Second)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.title", "PestAlert: alerte critique")
	viper.SetDefault("notification.template", "")
	viper.SetDefault("notification.timeout", 10*time.Second)
	viper.SetDefault("notification.ratelimit", 30)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
