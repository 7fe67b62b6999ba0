// Package app wires the PestAlert components from settings.
package app

import (
	"context"
	"time"

	"github.com/pestalert/pestalert-go/internal/analysis"
	"github.com/pestalert/pestalert-go/internal/assets"
	"github.com/pestalert/pestalert-go/internal/auth"
	"github.com/pestalert/pestalert-go/internal/classifier"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/imagecheck"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/mqtt"
	"github.com/pestalert/pestalert-go/internal/notification"
	"github.com/pestalert/pestalert-go/internal/observability"
	"github.com/pestalert/pestalert-go/internal/risk"
)

// App holds the long-lived components of one PestAlert process.
type App struct {
	Settings     *conf.Settings
	Metrics      *observability.Metrics
	Orchestrator *analysis.Orchestrator
	Assets       *assets.Catalog

	http *httpclient.Client
	mqtt mqtt.Client
	log  logger.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	httpConfig *httpclient.Config
	sinks      bool
}

// WithHTTPConfig overrides the outbound HTTP client configuration.
func WithHTTPConfig(cfg *httpclient.Config) Option {
	return func(o *options) { o.httpConfig = cfg }
}

// WithoutSinks skips MQTT and push notification setup. Used by one-shot
// commands that should not publish.
func WithoutSinks() Option {
	return func(o *options) { o.sinks = false }
}

// New builds every component from settings. Sinks that fail to initialize
// are logged and skipped; analysis works without them.
func New(settings *conf.Settings, log logger.Logger, opts ...Option) (*App, error) {
	o := options{sinks: true}
	for _, opt := range opts {
		opt(&o)
	}
	log = logger.OrDiscard(log)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}

	hcfg := o.httpConfig
	if hcfg == nil {
		hcfg = &httpclient.Config{UserAgent: settings.Classifier.UserAgent}
	}
	hc := httpclient.New(hcfg)
	hc.SetAfterResponseHook(metrics.Upstream.ObserveRequest)

	a := &App{
		Settings: settings,
		Metrics:  metrics,
		Assets:   assets.New(settings.Assets, log),
		http:     hc,
		log:      log.Module("app"),
	}

	tokens, err := auth.NewFromSettings(settings.Auth,
		auth.WithHTTPClient(hc.HTTPClient()),
		auth.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}

	riskProvider, err := risk.New(settings.Risk, hc, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var sinks []analysis.AlertSink
	if o.sinks {
		sinks = a.buildSinks(log)
	}

	a.Orchestrator, err = analysis.New(settings.Analysis, analysis.Deps{
		Validator:    imagecheck.New(settings.Image, log),
		Classifier:   classifier.New(settings.Classifier, hc, tokens, log),
		Tokens:       tokens,
		Risk:         riskProvider,
		Assets:       a.Assets,
		Sinks:        sinks,
		Metrics:      metrics.Analysis,
		AlertMetrics: metrics.Notification,
		Logger:       log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.log.Info("components ready",
		logger.String("risk_provider", riskProvider.Name()),
		logger.Int("sinks", len(sinks)))
	return a, nil
}

func (a *App) buildSinks(log logger.Logger) []analysis.AlertSink {
	var sinks []analysis.AlertSink
	instance := a.Settings.Main.Name

	if a.Settings.MQTT.Enabled {
		client, err := mqtt.NewClient(a.Settings.MQTT, instance, a.Metrics.MQTT, log)
		if err != nil {
			a.log.Error("MQTT disabled", logger.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := client.Connect(ctx); err != nil {
				// Publisher reconnects on the next delivery.
				a.log.Warn("MQTT broker unreachable at startup", logger.Error(err))
			}
			cancel()
			a.mqtt = client
			sinks = append(sinks, mqtt.NewPublisher(client, a.Settings.MQTT.Topic, instance))
		}
	}

	if a.Settings.Notification.Enabled {
		sink, err := notification.NewShoutrrrSink(a.Settings.Notification, instance, log)
		if err != nil {
			a.log.Error("push notifications disabled", logger.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Close waits for pending deliveries and releases connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	a.http.Close()
}
