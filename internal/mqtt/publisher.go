package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/model"
)

// AnalysisTopicSuffix is appended to the configured topic prefix.
const AnalysisTopicSuffix = "analysis"

// Publisher sends every analysis outcome to <prefix>/analysis.
type Publisher struct {
	client   Client
	topic    string
	instance string
}

// NewPublisher creates a publisher on top of client.
func NewPublisher(client Client, prefix, instance string) *Publisher {
	return &Publisher{
		client:   client,
		topic:    strings.TrimSuffix(prefix, "/") + "/" + AnalysisTopicSuffix,
		instance: instance,
	}
}

// Name implements analysis.AlertSink.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the publish topic.
func (p *Publisher) Topic() string { return p.topic }

// Deliver publishes the outcome, connecting first when needed.
func (p *Publisher) Deliver(ctx context.Context, o *model.AnalysisOutcome) error {
	if o == nil {
		return nil
	}
	payload, err := json.Marshal(NewAnalysisEventDTO(p.instance, o))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_event").
			Build()
	}
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	return p.client.Publish(ctx, p.topic, payload)
}
