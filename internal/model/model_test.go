package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskTierFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		confidence float64
		want       RiskTier
	}{
		{0, RiskMinimal},
		{0.19, RiskMinimal},
		{0.2, RiskLow},
		{0.39, RiskLow},
		{0.4, RiskMedium},
		{0.59, RiskMedium},
		{0.6, RiskHigh},
		{0.79, RiskHigh},
		{0.8, RiskCritical},
		{1, RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskTierFor(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestAlertLevelForUsesStrictThresholds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AlertLow, AlertLevelFor(0.4))
	assert.Equal(t, AlertMedium, AlertLevelFor(0.41))
	assert.Equal(t, AlertMedium, AlertLevelFor(0.6))
	assert.Equal(t, AlertHigh, AlertLevelFor(0.8))
	assert.Equal(t, AlertCritical, AlertLevelFor(0.81))
}

func TestSyntheticMultiClass(t *testing.T) {
	t.Parallel()

	mc := SyntheticMultiClass()
	assert.Len(t, mc.All, 1)
	assert.Equal(t, mc.All[0], mc.Top)
	assert.Equal(t, RiskMinimal, mc.Top.Tier)
}

func TestParseSubscriptionTier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TierPremium, ParseSubscriptionTier(" Premium "))
	assert.Equal(t, TierBasic, ParseSubscriptionTier(""))
	assert.Equal(t, TierBasic, ParseSubscriptionTier("gold"))
}

func TestDecisionKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindCritical, AlertDecision{Critical: true}.Kind())
	assert.Equal(t, KindPreventive, AlertDecision{Preventive: true}.Kind())
	assert.Equal(t, KindNormal, AlertDecision{}.Kind())
	assert.Equal(t, AlertLow, NeutralRisk().AlertLevel)
}
