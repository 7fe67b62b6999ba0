package risk

import (
	"context"
	"slices"

	"github.com/pestalert/pestalert-go/internal/model"
)

// Representative score for each level, inside the band AlertLevelFor maps back to it.
var levelScores = map[model.AlertLevel]float64{
	model.AlertLow:      0.2,
	model.AlertMedium:   0.5,
	model.AlertHigh:     0.7,
	model.AlertCritical: 0.9,
}

// Static always reports the same level. It is the default provider and the
// usual test double.
type Static struct {
	level model.AlertLevel
}

// NewStatic creates a provider reporting level.
func NewStatic(level model.AlertLevel) *Static {
	return &Static{level: level}
}

// GetRisk returns the fixed estimate.
func (s *Static) GetRisk(ctx context.Context, _, _ float64) (model.EnvironmentalRisk, error) {
	if err := ctx.Err(); err != nil {
		return model.EnvironmentalRisk{}, newRiskError(err, s.Name(), "get_risk")
	}
	score := levelScores[s.level]
	return model.EnvironmentalRisk{
		CurrentRisk:     score,
		ForecastRisk:    score,
		AlertLevel:      s.level,
		Source:          s.Name(),
		Recommendations: slices.Clone(baseRecommendations),
	}, nil
}

// Name returns "static".
func (s *Static) Name() string { return "static" }
