package classifier

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pestalert/pestalert-go/internal/model"
)

const (
	// Used when a scalar response carries a label but no confidence.
	defaultScalarBinaryConfidence = 0.8
	defaultScalarClassConfidence  = 0.5

	processingTimeKey = "processing_time"
)

// response is one of the upstream body shapes. Each variant normalizes
// itself into both canonical result types.
type response interface {
	binary(observedAt time.Time) (model.BinaryHealthResult, error)
	multiClass() model.MultiClassResult
}

// scalarResponse is a single health verdict or score, e.g.
// {"health": "diseased", "confidence": 0.7} or {"score": 0.92}.
type scalarResponse struct {
	label          string   // health label when given as text
	score          *float64 // probability the plant is healthy when given as a number
	confidence     *float64
	processingTime *time.Duration
}

// distributionResponse is a label to probability mapping, e.g.
// {"HLT": 0.1, "NLB": 0.7} or {"probabilities": {...}}.
type distributionResponse struct {
	probs          map[string]float64
	processingTime *time.Duration
}

var (
	distributionKeys = []string{"probabilities", "predictions"}
	scalarKeys       = []string{"health", "score"}
	healthyLabels    = []string{"hlt", "healthy"}

	// numeric metadata that is never a class label
	reservedKeys = []string{"confidence", "score", processingTimeKey}
)

// decodeResponse classifies body into a response variant.
func decodeResponse(body []byte) (response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	pt := decodeProcessingTime(fields[processingTimeKey])

	for _, key := range distributionKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		probs, err := decodeDistribution(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return &distributionResponse{probs: probs, processingTime: pt}, nil
	}

	for _, key := range scalarKeys {
		if raw, ok := fields[key]; ok {
			return newScalar(fields, raw, key, pt)
		}
	}

	if probs, ok := topLevelDistribution(fields); ok {
		return &distributionResponse{probs: probs, processingTime: pt}, nil
	}

	// HLT next to non-numeric fields is a bare health score
	if raw, ok := fields["HLT"]; ok {
		return newScalar(fields, raw, "HLT", pt)
	}

	return nil, fmt.Errorf("unrecognized response shape")
}

func newScalar(fields map[string]json.RawMessage, raw json.RawMessage, key string, pt *time.Duration) (*scalarResponse, error) {
	s := &scalarResponse{processingTime: pt}
	if err := s.setHealth(raw); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	if c, ok := decodeNumber(fields["confidence"]); ok {
		s.confidence = &c
	}
	return s, nil
}

func decodeDistribution(raw json.RawMessage) (map[string]float64, error) {
	var probs map[string]float64
	if err := json.Unmarshal(raw, &probs); err == nil {
		return probs, nil
	}

	var list []struct {
		Label       string   `json:"label"`
		Disease     string   `json:"disease"`
		Confidence  *float64 `json:"confidence"`
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("expected label to probability mapping")
	}

	probs = make(map[string]float64, len(list))
	for _, e := range list {
		label := cmp.Or(e.Label, e.Disease)
		p := e.Confidence
		if p == nil {
			p = e.Probability
		}
		if label == "" || p == nil {
			continue
		}
		probs[label] = *p
	}
	return probs, nil
}

// topLevelDistribution accepts objects whose values are all numbers.
func topLevelDistribution(fields map[string]json.RawMessage) (map[string]float64, bool) {
	probs := make(map[string]float64, len(fields))
	for k, raw := range fields {
		if slices.Contains(reservedKeys, k) {
			continue
		}
		p, ok := decodeNumber(raw)
		if !ok {
			return nil, false
		}
		probs[k] = p
	}
	return probs, len(probs) > 0
}

func (s *scalarResponse) setHealth(raw json.RawMessage) error {
	if n, ok := decodeNumber(raw); ok {
		s.score = &n
		return nil
	}
	var label string
	if err := json.Unmarshal(raw, &label); err != nil || strings.TrimSpace(label) == "" {
		return fmt.Errorf("expected health label or score")
	}
	s.label = strings.TrimSpace(label)
	return nil
}

func (s *scalarResponse) binary(observedAt time.Time) (model.BinaryHealthResult, error) {
	res := model.BinaryHealthResult{ObservedAt: observedAt, ProcessingTime: s.processingTime}

	if s.score != nil {
		p := clamp01(*s.score)
		if p >= 0.5 {
			res.Prediction, res.Confidence = model.Healthy, p
		} else {
			res.Prediction, res.Confidence = model.Diseased, 1-p
		}
		return res, nil
	}

	res.Prediction = model.Diseased
	if isHealthyLabel(s.label) {
		res.Prediction = model.Healthy
	}
	res.Confidence = defaultScalarBinaryConfidence
	if s.confidence != nil {
		res.Confidence = clamp01(*s.confidence)
	}
	return res, nil
}

func (s *scalarResponse) multiClass() model.MultiClassResult {
	label := s.label
	confidence := defaultScalarClassConfidence
	if s.confidence != nil {
		confidence = clamp01(*s.confidence)
	}
	if s.score != nil {
		// A bare health score says nothing about which disease
		label = model.UnknownLabel
		confidence = 1 - clamp01(*s.score)
	}
	if label == "" {
		return model.SyntheticMultiClass()
	}
	p := model.NewDiseasePrediction(label, confidence)
	return model.MultiClassResult{Top: p, All: []model.DiseasePrediction{p}}
}

func (d *distributionResponse) binary(observedAt time.Time) (model.BinaryHealthResult, error) {
	res := model.BinaryHealthResult{ObservedAt: observedAt, ProcessingTime: d.processingTime}

	if p, ok := d.healthyProbability(); ok {
		if p >= 0.5 {
			res.Prediction, res.Confidence = model.Healthy, p
		} else {
			res.Prediction, res.Confidence = model.Diseased, 1-p
		}
		return res, nil
	}

	// No healthy class: the strongest disease class decides
	mc := d.multiClass()
	if mc.Top.Label == model.UnknownLabel && mc.Top.Confidence == 0 {
		return res, fmt.Errorf("distribution has no usable probabilities")
	}
	res.Prediction, res.Confidence = model.Diseased, mc.Top.Confidence
	return res, nil
}

// healthyProbability returns the probability of the first healthy class in
// label order.
func (d *distributionResponse) healthyProbability() (float64, bool) {
	labels := slices.Sorted(maps.Keys(d.probs))
	for _, label := range labels {
		if p := d.probs[label]; isHealthyLabel(label) && finite(p) {
			return clamp01(p), true
		}
	}
	return 0, false
}

func (d *distributionResponse) multiClass() model.MultiClassResult {
	all := make([]model.DiseasePrediction, 0, len(d.probs))
	for label, p := range d.probs {
		if label == "" || !finite(p) {
			continue
		}
		all = append(all, model.NewDiseasePrediction(label, clamp01(p)))
	}
	if len(all) == 0 {
		return model.SyntheticMultiClass()
	}

	slices.SortFunc(all, func(a, b model.DiseasePrediction) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return strings.Compare(a.Label, b.Label)
		}
	})
	return model.MultiClassResult{Top: all[0], All: all}
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

// decodeProcessingTime reads a millisecond duration.
func decodeProcessingTime(raw json.RawMessage) *time.Duration {
	ms, ok := decodeNumber(raw)
	if !ok || ms < 0 || !finite(ms) {
		return nil
	}
	d := time.Duration(ms * float64(time.Millisecond))
	return &d
}

func isHealthyLabel(label string) bool {
	return slices.Contains(healthyLabels, strings.ToLower(strings.TrimSpace(label)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
