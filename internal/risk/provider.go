// Package risk estimates environmental pest pressure for a location.
package risk

import (
	"context"
	"strings"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

// Provider returns an environmental risk estimate for a coordinate.
type Provider interface {
	GetRisk(ctx context.Context, lat, lon float64) (model.EnvironmentalRisk, error)
	Name() string
}

// Recommendations attached to every estimate.
var baseRecommendations = []string{
	"Surveiller les conditions d'humidité",
	"Vérifier les prévisions météorologiques",
	"Adapter les pratiques d'irrigation",
}

// New builds the provider selected by s.Provider, wrapped in a cache when
// s.CacheTTL is positive.
func New(s conf.RiskSettings, hc *httpclient.Client, log logger.Logger) (Provider, error) {
	log = logger.OrDiscard(log).Module("risk")

	var p Provider
	switch strings.ToLower(s.Provider) {
	case conf.RiskProviderStatic, "":
		level, err := ParseAlertLevel(s.StaticLevel)
		if err != nil {
			return nil, err
		}
		p = NewStatic(level)
	case conf.RiskProviderYrNo:
		p = NewYrNo(s.YrNo, hc, log)
	default:
		return nil, errors.Newf("unknown risk provider %q", s.Provider).
			Component("risk").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if s.CacheTTL > 0 {
		p = NewCached(p, s.CacheTTL)
	}
	log.Info("risk provider ready", logger.String("provider", p.Name()))
	return p, nil
}

// ParseAlertLevel parses a level name; empty means LOW.
func ParseAlertLevel(s string) (model.AlertLevel, error) {
	switch level := model.AlertLevel(strings.ToUpper(strings.TrimSpace(s))); level {
	case "":
		return model.AlertLow, nil
	case model.AlertLow, model.AlertMedium, model.AlertHigh, model.AlertCritical:
		return level, nil
	default:
		return "", errors.Newf("unknown alert level %q", s).
			Component("risk").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func newRiskError(err error, provider, operation string) error {
	return errors.New(err).
		Component("risk").
		Category(errors.CategoryRiskProvider).
		Context("provider", provider).
		Context("operation", operation).
		Build()
}
