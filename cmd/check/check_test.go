package check

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pestalert/pestalert-go/internal/analysis"
)

func TestFormatStatus(t *testing.T) {
	t.Parallel()

	out := FormatStatus(analysis.ServiceStatus{
		Status:        analysis.StatusWarning,
		Error:         "missing voice notes: uncertain",
		Classifier:    true,
		AudioComplete: false,
		RiskProvider:  "yrno",
	})

	assert.Contains(t, out, "⚠️ warning")
	assert.Contains(t, out, "missing voice notes: uncertain")
	assert.Contains(t, out, "classifier reachable: true")
	assert.Contains(t, out, "risk provider:        yrno")

	out = FormatStatus(analysis.ServiceStatus{Status: analysis.StatusHealthy})
	assert.Contains(t, out, "✅ healthy")
	assert.NotContains(t, out, "   \n")
}
