package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

// Service status values.
const (
	StatusHealthy = "healthy"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ServiceStatus summarizes whether the service can currently analyse photos.
type ServiceStatus struct {
	Status        string                `json:"status" yaml:"status"`
	Error         string                `json:"error,omitempty" yaml:"error,omitempty"`
	Classifier    bool                  `json:"classifier_reachable" yaml:"classifier_reachable"`
	AudioComplete bool                  `json:"audio_available" yaml:"audio_available"`
	MissingAudio  []model.AudioCategory `json:"missing_audio,omitempty" yaml:"missing_audio,omitempty"`
	RiskProvider  string                `json:"risk_provider" yaml:"risk_provider"`
	CheckedAt     time.Time             `json:"checked_at" yaml:"checked_at"`
}

// Status checks the classifier (token then ping) and the voice-note
// catalog. An unreachable classifier is an error; missing voice notes only
// warn because analyses still complete without audio.
func (o *Orchestrator) Status(ctx context.Context) ServiceStatus {
	st := ServiceStatus{
		Status:       StatusHealthy,
		RiskProvider: o.risk.Name(),
		CheckedAt:    o.now(),
	}

	av := o.assets.CheckAvailability()
	st.AudioComplete = av.Available
	st.MissingAudio = av.Missing

	cctx, cancel := context.WithTimeout(ctx, o.classificationTimeout)
	defer cancel()

	if err := o.checkClassifier(cctx); err != nil {
		o.log.Warn("classifier unavailable", logger.Error(err))
		st.Status = StatusError
		st.Error = "classification service unavailable"
		return st
	}
	st.Classifier = true

	if !av.Available {
		names := make([]string, len(av.Missing))
		for i, c := range av.Missing {
			names[i] = string(c)
		}
		st.Status = StatusWarning
		st.Error = fmt.Sprintf("missing voice notes: %s", strings.Join(names, ", "))
	}
	return st
}

func (o *Orchestrator) checkClassifier(ctx context.Context) error {
	if o.tokens != nil {
		if _, err := o.tokens.Token(ctx); err != nil {
			return err
		}
	}
	return o.classifier.Ping(ctx)
}
