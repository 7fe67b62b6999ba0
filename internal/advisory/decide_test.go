package advisory

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/model"
)

func binary(p model.HealthPrediction, c float64) model.BinaryHealthResult {
	return model.BinaryHealthResult{Prediction: p, Confidence: c, ObservedAt: time.Unix(0, 0)}
}

func multi(label string, c float64) model.MultiClassResult {
	top := model.NewDiseasePrediction(label, c)
	return model.MultiClassResult{Top: top, All: []model.DiseasePrediction{top}}
}

func riskAt(level model.AlertLevel) model.EnvironmentalRisk {
	return model.EnvironmentalRisk{AlertLevel: level}
}

func TestDecideCriticalArmyworm(t *testing.T) {
	t.Parallel()

	d := Decide(binary(model.Diseased, 0.9), multi("FAW", 0.85), riskAt(model.AlertCritical), model.TierBasic)

	assert.True(t, d.Critical)
	assert.False(t, d.Preventive)
	assert.Equal(t, []model.Action{
		model.ActionUrgentIntervention, model.ActionExpertCall, model.ActionOrderTreatment,
	}, d.Actions)
	assert.Contains(t, d.Message, "85.0%")
}

func TestDecideCriticalNeedsAllThreeConditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		label string
		conf  float64
		level model.AlertLevel
	}{
		{"confidence at threshold", "faw", 0.7, model.AlertCritical},
		{"risk only high", "faw", 0.9, model.AlertHigh},
		{"not armyworm", "maize_rust", 0.95, model.AlertCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Decide(binary(model.Healthy, 0.6), multi(tt.label, tt.conf), riskAt(tt.level), model.TierPremium)
			assert.False(t, d.Critical)
		})
	}
}

func TestDecideLabelMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	d := Decide(binary(model.Diseased, 0.9), multi("Maize_Faw_Damage", 0.9), riskAt(model.AlertCritical), model.TierBasic)
	assert.True(t, d.Critical)
}

func TestDecidePreventive(t *testing.T) {
	t.Parallel()

	d := Decide(binary(model.Diseased, 0.6), multi("leaf_spot", 0.3), riskAt(model.AlertHigh), model.TierBasic)

	assert.True(t, d.Preventive)
	assert.False(t, d.Critical)
	assert.Equal(t, []model.Action{
		model.ActionDailyMonitoring, model.ActionReportSymptoms, model.ActionPreventiveTreatment,
	}, d.Actions)
}

func TestDecidePreventiveRequiresDiseased(t *testing.T) {
	t.Parallel()

	d := Decide(binary(model.Healthy, 0.6), multi("leaf_spot", 0.3), riskAt(model.AlertHigh), model.TierBasic)
	assert.False(t, d.Preventive)
	assert.Equal(t, model.KindNormal, d.Kind())
}

func TestDecideNormalHealthyLowRisk(t *testing.T) {
	t.Parallel()

	d := Decide(binary(model.Healthy, 0.95), multi("HLT", 0.1), riskAt(model.AlertLow), model.TierBasic)

	assert.False(t, d.Critical)
	assert.False(t, d.Preventive)
	assert.Equal(t, []model.Action{model.ActionContinueMonitoring, model.ActionFollowRecommendations}, d.Actions)
	assert.Contains(t, d.Message, RoutineMonitoring)
	assert.Contains(t, d.Message, "95.0%")
	assert.Contains(t, d.Message, "SAINE")
}

func TestRecommendations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		label   string
		conf    float64
		want    []string
		notWant []string
	}{
		{
			name:  "high tier",
			label: "leaf_blight", conf: 0.65,
			want: []string{"Traitement immédiat recommandé", "Isoler les plants affectés", "Contrôler la température"},
		},
		{
			name:  "medium tier rust",
			label: "Common_Rust", conf: 0.5,
			want:    []string{"Surveillance accrue recommandée", "Améliorer la ventilation"},
			notWant: []string{"Traitement immédiat recommandé"},
		},
		{
			name:  "low tier armyworm",
			label: "fall_armyworm", conf: 0.1,
			want: []string{RoutineMonitoring, "Vérifier la présence de chenilles"},
		},
		{
			name:  "french mildiou",
			label: "Mildiou", conf: 0.3,
			want: []string{"Éliminer les feuilles affectées"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recs := Recommendations(model.NewDiseasePrediction(tt.label, tt.conf))
			joined := ""
			for _, r := range recs {
				joined += r + "\n"
			}
			for _, w := range tt.want {
				assert.Contains(t, joined, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, joined, nw)
			}
		})
	}
}

func TestDecideIsDeterministicAndExclusive(t *testing.T) {
	t.Parallel()

	labels := []string{"faw", "FAW_larva", "maize_rust", "blight", "HLT", "unknown"}
	levels := []model.AlertLevel{model.AlertLow, model.AlertMedium, model.AlertHigh, model.AlertCritical}
	preds := []model.HealthPrediction{model.Healthy, model.Diseased}
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test data

	for range 500 {
		b := binary(preds[rng.IntN(len(preds))], rng.Float64())
		m := multi(labels[rng.IntN(len(labels))], rng.Float64())
		r := riskAt(levels[rng.IntN(len(levels))])

		first := Decide(b, m, r, model.TierBasic)
		second := Decide(b, m, r, model.TierPremium)

		require.Equal(t, first, second, "decision must not depend on tier or call order")
		require.False(t, first.Critical && first.Preventive, "critical and preventive are exclusive")
		require.NotEmpty(t, first.Message)
		require.NotEmpty(t, first.Actions)
	}
}

func TestDegradedDecisions(t *testing.T) {
	t.Parallel()

	for _, d := range []model.AlertDecision{DegradedDecision(), ServiceDegradedDecision()} {
		assert.False(t, d.Critical)
		assert.False(t, d.Preventive)
		assert.NotEmpty(t, d.Message)
		assert.Equal(t, []model.Action{model.ActionRetryAnalysis}, d.Actions)
	}
}
