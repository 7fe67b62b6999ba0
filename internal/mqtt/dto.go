package mqtt

import (
	"time"

	"github.com/pestalert/pestalert-go/internal/model"
	"github.com/pestalert/pestalert-go/internal/privacy"
)

// AnalysisEventDTO is the JSON payload published for every analysis. Field
// names are part of the topic contract consumed by the dashboard.
type AnalysisEventDTO struct {
	RequestID    string   `json:"requestId"`
	Instance     string   `json:"instance,omitempty"`
	FarmerID     string   `json:"farmerId"` // masked
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Tier         string   `json:"tier"`
	Kind         string   `json:"kind"`
	Prediction   string   `json:"prediction"`
	Confidence   float64  `json:"confidence"`
	TopLabel     string   `json:"topLabel"`
	TopScore     float64  `json:"topConfidence"`
	RiskTier     string   `json:"riskTier"`
	AlertLevel   string   `json:"alertLevel"`
	CurrentRisk  float64  `json:"currentRisk"`
	ForecastRisk float64  `json:"forecastRisk"`
	Actions      []string `json:"actions"`
	AudioSent    string   `json:"audio,omitempty"`
	Degradations []string `json:"degradations,omitempty"`
	Timestamp    string   `json:"timestamp"` // RFC 3339
}

// NewAnalysisEventDTO flattens an outcome. Audio bytes are never included.
func NewAnalysisEventDTO(instance string, o *model.AnalysisOutcome) *AnalysisEventDTO {
	dto := &AnalysisEventDTO{
		RequestID:    o.RequestID,
		Instance:     instance,
		FarmerID:     privacy.MaskFarmerID(o.Farmer.ID),
		Latitude:     o.Farmer.Location.Lat,
		Longitude:    o.Farmer.Location.Lon,
		Tier:         string(o.Farmer.Tier),
		Kind:         string(o.Kind),
		Prediction:   string(o.Binary.Prediction),
		Confidence:   o.Binary.Confidence,
		TopLabel:     o.MultiClass.Top.Label,
		TopScore:     o.MultiClass.Top.Confidence,
		RiskTier:     string(o.MultiClass.Top.Tier),
		AlertLevel:   string(o.Risk.AlertLevel),
		CurrentRisk:  o.Risk.CurrentRisk,
		ForecastRisk: o.Risk.ForecastRisk,
		Actions:      make([]string, len(o.Decision.Actions)),
		Timestamp:    o.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for i, a := range o.Decision.Actions {
		dto.Actions[i] = string(a)
	}
	if o.Audio != nil {
		dto.AudioSent = string(o.Audio.Category)
	}
	for _, d := range o.Degradations {
		dto.Degradations = append(dto.Degradations, d.Step)
	}
	return dto
}
