// Package model defines the request-scoped data passed between the analysis
// pipeline stages. Values are built once per request and never shared.
package model

import (
	"strings"
	"time"
)

// SubscriptionTier is the farmer's service plan.
type SubscriptionTier string

const (
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
)

// ParseSubscriptionTier normalizes a tier string; unknown or empty values map to basic.
func ParseSubscriptionTier(s string) SubscriptionTier {
	if SubscriptionTier(strings.ToLower(strings.TrimSpace(s))) == TierPremium {
		return TierPremium
	}
	return TierBasic
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// FarmerContext identifies the requester. Supplied by the caller.
type FarmerContext struct {
	ID       string           `json:"id" yaml:"id"`
	Location Location         `json:"location" yaml:"location"`
	Tier     SubscriptionTier `json:"subscription_tier" yaml:"subscription_tier"`
}

// HealthPrediction is the binary classifier verdict.
type HealthPrediction string

const (
	Healthy  HealthPrediction = "healthy"
	Diseased HealthPrediction = "diseased"
)

// BinaryHealthResult is the normalized binary classification.
type BinaryHealthResult struct {
	Prediction     HealthPrediction `json:"prediction" yaml:"prediction"`
	Confidence     float64          `json:"confidence" yaml:"confidence"`
	ObservedAt     time.Time        `json:"observed_at" yaml:"observed_at"`
	ProcessingTime *time.Duration   `json:"processing_time,omitempty" yaml:"processing_time,omitempty"`
}

// RiskTier grades a single disease prediction by confidence.
type RiskTier string

const (
	RiskMinimal  RiskTier = "MINIMAL"
	RiskLow      RiskTier = "LOW"
	RiskMedium   RiskTier = "MEDIUM"
	RiskHigh     RiskTier = "HIGH"
	RiskCritical RiskTier = "CRITICAL"
)

// RiskTierFor maps a confidence in [0,1] to its tier.
func RiskTierFor(confidence float64) RiskTier {
	switch {
	case confidence >= 0.8:
		return RiskCritical
	case confidence >= 0.6:
		return RiskHigh
	case confidence >= 0.4:
		return RiskMedium
	case confidence >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// UnknownLabel is used for the synthetic entry of an empty distribution.
const UnknownLabel = "unknown"

// DiseasePrediction is one ranked entry of the multi-class distribution.
type DiseasePrediction struct {
	Label      string   `json:"label" yaml:"label"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Tier       RiskTier `json:"risk_tier" yaml:"risk_tier"`
}

// NewDiseasePrediction derives the tier from the confidence.
func NewDiseasePrediction(label string, confidence float64) DiseasePrediction {
	return DiseasePrediction{Label: label, Confidence: confidence, Tier: RiskTierFor(confidence)}
}

// MultiClassResult is the ranked disease distribution. All is never empty
// and Top always equals All[0].
type MultiClassResult struct {
	Top DiseasePrediction   `json:"top_prediction" yaml:"top_prediction"`
	All []DiseasePrediction `json:"all_predictions" yaml:"all_predictions"`
}

// SyntheticMultiClass returns the single-entry result used when no usable
// distribution exists.
func SyntheticMultiClass() MultiClassResult {
	p := NewDiseasePrediction(UnknownLabel, 0)
	return MultiClassResult{Top: p, All: []DiseasePrediction{p}}
}

// AlertLevel is the environmental pest-pressure level.
type AlertLevel string

const (
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertLevelFor grades a risk score using strict thresholds.
func AlertLevelFor(score float64) AlertLevel {
	switch {
	case score > 0.8:
		return AlertCritical
	case score > 0.6:
		return AlertHigh
	case score > 0.4:
		return AlertMedium
	default:
		return AlertLow
	}
}

// EnvironmentalRisk is a location's pest-pressure estimate.
type EnvironmentalRisk struct {
	CurrentRisk     float64    `json:"current_risk" yaml:"current_risk"`
	ForecastRisk    float64    `json:"forecast_risk" yaml:"forecast_risk"`
	AlertLevel      AlertLevel `json:"alert_level" yaml:"alert_level"`
	Source          string     `json:"source,omitempty" yaml:"source,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// NeutralRisk is substituted when no provider answer is available.
func NeutralRisk() EnvironmentalRisk {
	return EnvironmentalRisk{AlertLevel: AlertLow, Source: "neutral"}
}

// Action tags attached to a decision.
type Action string

const (
	ActionUrgentIntervention    Action = "urgent_intervention"
	ActionExpertCall            Action = "expert_call"
	ActionOrderTreatment        Action = "order_treatment"
	ActionDailyMonitoring       Action = "daily_monitoring"
	ActionReportSymptoms        Action = "report_symptoms"
	ActionPreventiveTreatment   Action = "preventive_treatment"
	ActionContinueMonitoring    Action = "continue_monitoring"
	ActionFollowRecommendations Action = "follow_recommendations"
	ActionRetryAnalysis         Action = "retry_analysis"
)

// AlertDecision is the graded verdict. Critical and Preventive are never both true.
type AlertDecision struct {
	Critical   bool     `json:"critical" yaml:"critical"`
	Preventive bool     `json:"preventive" yaml:"preventive"`
	Message    string   `json:"message" yaml:"message"`
	Actions    []Action `json:"actions" yaml:"actions"`
}

// AlertKind is a flat view of a decision for logs, metrics and events.
type AlertKind string

const (
	KindCritical   AlertKind = "critical"
	KindPreventive AlertKind = "preventive"
	KindNormal     AlertKind = "normal"
	KindDegraded   AlertKind = "degraded"
)

// Kind reports the decision grade. Degraded is decided by the orchestrator,
// so a decision on its own is never degraded.
func (d AlertDecision) Kind() AlertKind {
	switch {
	case d.Critical:
		return KindCritical
	case d.Preventive:
		return KindPreventive
	default:
		return KindNormal
	}
}

// AudioCategory is one of the canonical voice-note categories.
type AudioCategory string

const (
	AudioNormal    AudioCategory = "normal"
	AudioAlert     AudioCategory = "alert"
	AudioUncertain AudioCategory = "uncertain"
)

// AudioCategories lists every category in catalog order.
func AudioCategories() []AudioCategory {
	return []AudioCategory{AudioNormal, AudioAlert, AudioUncertain}
}

// AudioAsset is a resolved voice note ready for delivery.
type AudioAsset struct {
	Category AudioCategory `json:"category" yaml:"category"`
	Filename string        `json:"filename" yaml:"filename"`
	MIMEType string        `json:"mime_type" yaml:"mime_type"`
	Size     int64         `json:"size" yaml:"size"`
	Data     []byte        `json:"-" yaml:"-"`
}

// Degradation records a recovery step that replaced a failed stage.
type Degradation struct {
	Step     string `json:"step" yaml:"step"`
	Replaces string `json:"replaces" yaml:"replaces"`
	Reason   string `json:"reason" yaml:"reason"`
}

// AnalysisOutcome is the immutable result handed back to the caller.
// Audio is nil when no voice note could be resolved.
type AnalysisOutcome struct {
	RequestID    string             `json:"request_id" yaml:"request_id"`
	Farmer       FarmerContext      `json:"farmer" yaml:"farmer"`
	Binary       BinaryHealthResult `json:"binary" yaml:"binary"`
	MultiClass   MultiClassResult   `json:"multi_class" yaml:"multi_class"`
	Risk         EnvironmentalRisk  `json:"risk" yaml:"risk"`
	Decision     AlertDecision      `json:"decision" yaml:"decision"`
	Kind         AlertKind          `json:"kind" yaml:"kind"`
	Audio        *AudioAsset        `json:"audio,omitempty" yaml:"audio,omitempty"`
	Degradations []Degradation      `json:"degradations,omitempty" yaml:"degradations,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at" yaml:"generated_at"`
}

// Degraded reports whether any recovery step fired for the named stage.
func (o *AnalysisOutcome) Degraded(step string) bool {
	for _, d := range o.Degradations {
		if d.Step == step {
			return true
		}
	}
	return false
}
