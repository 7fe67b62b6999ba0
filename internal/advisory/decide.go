// Package advisory turns classification results and environmental risk into
// a graded alert decision with the farmer-facing message.
package advisory

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/pestalert/pestalert-go/internal/model"
)

// criticalConfidence is the top-prediction confidence that must be exceeded
// (strictly) before a fall armyworm detection escalates.
const criticalConfidence = 0.7

// armywormMarker is the upstream label token for fall armyworm (Spodoptera
// frugiperda). Labels carry no stable code, so matching is by substring.
const armywormMarker = "faw"

// fold lowercases using Unicode case folding so labels such as "FAW" or
// "Rouille" match regardless of upstream casing. A Caser is stateful, so
// one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// isArmywormLabel reports whether the label names fall armyworm for the
// critical rule.
func isArmywormLabel(label string) bool {
	return strings.Contains(fold(label), armywormMarker)
}

// Decide grades the analysis. It is pure: no I/O and no clock, so equal
// inputs always yield equal decisions. The subscription tier is accepted
// for future differentiation and does not change the result.
//
// Rules are evaluated in order and the first match wins, which keeps
// Critical and Preventive mutually exclusive.
func Decide(binary model.BinaryHealthResult, multi model.MultiClassResult, risk model.EnvironmentalRisk, _ model.SubscriptionTier) model.AlertDecision {
	top := multi.Top

	switch {
	case isArmywormLabel(top.Label) && top.Confidence > criticalConfidence && risk.AlertLevel == model.AlertCritical:
		return model.AlertDecision{
			Critical: true,
			Message:  criticalMessage(top),
			Actions: []model.Action{
				model.ActionUrgentIntervention,
				model.ActionExpertCall,
				model.ActionOrderTreatment,
			},
		}

	case risk.AlertLevel == model.AlertHigh && binary.Prediction == model.Diseased:
		return model.AlertDecision{
			Preventive: true,
			Message:    preventiveMessage(),
			Actions: []model.Action{
				model.ActionDailyMonitoring,
				model.ActionReportSymptoms,
				model.ActionPreventiveTreatment,
			},
		}

	default:
		return model.AlertDecision{
			Message: normalMessage(binary, top),
			Actions: []model.Action{
				model.ActionContinueMonitoring,
				model.ActionFollowRecommendations,
			},
		}
	}
}

// DegradedDecision is the non-critical decision used when classification
// could not produce a result.
func DegradedDecision() model.AlertDecision {
	return model.AlertDecision{
		Message: degradedMessage,
		Actions: []model.Action{model.ActionRetryAnalysis},
	}
}

// ServiceDegradedDecision is the plain-text decision used when neither a
// classification nor a voice note is available.
func ServiceDegradedDecision() model.AlertDecision {
	return model.AlertDecision{
		Message: serviceDegradedMessage,
		Actions: []model.Action{model.ActionRetryAnalysis},
	}
}
