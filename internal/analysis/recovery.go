package analysis

import (
	"slices"
	"time"

	"github.com/pestalert/pestalert-go/internal/advisory"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/model"
)

// Pipeline stage names, also used as metric labels.
const (
	stageValidation     = "validation"
	stageClassification = "classification"
	stageRisk           = "risk"
	stageDecision       = "decision"
	stageAudio          = "audio"
)

// Recovery step names as reported in model.Degradation.Step.
const (
	stepClassification  = "classification"
	stepRisk            = "risk"
	stepAudio           = "audio"
	stepServiceDegraded = "service-degraded"
)

// pipeline is the per-request working state. It is owned by one Analyze
// call and never shared between goroutines.
type pipeline struct {
	farmer    model.FarmerContext
	image     []byte
	startedAt time.Time

	binary   model.BinaryHealthResult
	multi    model.MultiClassResult
	risk     model.EnvironmentalRisk
	decision model.AlertDecision
	audio    *model.AudioAsset

	classErr error
	riskErr  error
	audioErr error

	degradations []model.Degradation
}

func (p *pipeline) degraded(step string) bool {
	return slices.ContainsFunc(p.degradations, func(d model.Degradation) bool {
		return d.Step == step
	})
}

func (p *pipeline) outcome(requestID string, now time.Time) *model.AnalysisOutcome {
	kind := p.decision.Kind()
	if p.degraded(stepClassification) {
		kind = model.KindDegraded
	}
	return &model.AnalysisOutcome{
		RequestID:    requestID,
		Farmer:       p.farmer,
		Binary:       p.binary,
		MultiClass:   p.multi,
		Risk:         p.risk,
		Decision:     p.decision,
		Kind:         kind,
		Audio:        p.audio,
		Degradations: slices.Clone(p.degradations),
		GeneratedAt:  now,
	}
}

var errServiceDegraded = errors.NewStd("classification and voice note both unavailable")

// recoveryStep replaces the output of a failed stage with a safe default.
// cause returns nil when the step does not apply.
type recoveryStep struct {
	name     string
	replaces string
	after    string
	cause    func(*pipeline) error
	apply    func(*pipeline)
}

// recoverySteps is evaluated in order. Each step runs right after the stage
// named in after, so later stages see the substituted values.
var recoverySteps = []recoveryStep{
	{
		name:     stepClassification,
		replaces: "binary, multi-class and decision",
		after:    stageClassification,
		cause:    func(p *pipeline) error { return p.classErr },
		apply: func(p *pipeline) {
			p.binary = model.BinaryHealthResult{Prediction: model.Healthy, Confidence: 0, ObservedAt: p.startedAt}
			p.multi = model.SyntheticMultiClass()
			p.decision = advisory.DegradedDecision()
		},
	},
	{
		name:     stepRisk,
		replaces: "environmental risk",
		after:    stageRisk,
		cause:    func(p *pipeline) error { return p.riskErr },
		apply:    func(p *pipeline) { p.risk = model.NeutralRisk() },
	},
	{
		name:     stepAudio,
		replaces: "voice note",
		after:    stageAudio,
		cause:    func(p *pipeline) error { return p.audioErr },
		apply:    func(p *pipeline) { p.audio = nil },
	},
	{
		name:     stepServiceDegraded,
		replaces: "message",
		after:    stageAudio,
		cause: func(p *pipeline) error {
			if p.degraded(stepClassification) && p.degraded(stepAudio) {
				return errServiceDegraded
			}
			return nil
		},
		apply: func(p *pipeline) { p.decision = advisory.ServiceDegradedDecision() },
	},
}
