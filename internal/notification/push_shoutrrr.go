// Package notification pushes critical alerts to operators through shoutrrr
// service URLs (Telegram, Slack, Discord, ntfy...).
package notification

import (
	"cmp"
	"context"
	"io"
	stdlog "log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
	"github.com/pestalert/pestalert-go/internal/privacy"
)

const defaultTimeout = 10 * time.Second

// ErrRateLimited is returned when too many alerts were pushed recently.
var ErrRateLimited = errors.NewStd("notification rate limit exceeded")

// sender is the part of shoutrrr's router used here.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrSink sends one message per critical outcome to every configured
// service URL. Other outcomes are ignored.
type ShoutrrrSink struct {
	name     string
	instance string
	title    string
	sender   sender
	breaker  *CircuitBreaker
	limiter  *PushRateLimiter
	tmpl     templateRenderer
	log      logger.Logger
}

type templateRenderer func(*TemplateData) (string, error)

// NewShoutrrrSink validates the service URLs and builds the sender.
func NewShoutrrrSink(s conf.NotificationSettings, instance string, log logger.Logger) (*ShoutrrrSink, error) {
	urls := slices.DeleteFunc(slices.Clone(s.URLs), func(u string) bool { return strings.TrimSpace(u) == "" })
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// URLs carry tokens
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router.Timeout = cmp.Or(s.Timeout, defaultTimeout)
	router.SetLogger(stdlog.New(io.Discard, "", 0))

	sink, err := newSink(router, s.Title, instance, s.Template, log)
	if err != nil {
		return nil, err
	}
	sink.limiter = NewPushRateLimiter(PushRateLimiterConfig{
		RequestsPerMinute: s.RateLimit,
		BurstSize:         s.RateLimit,
	})
	return sink, nil
}

func newSink(snd sender, title, instance, text string, log logger.Logger) (*ShoutrrrSink, error) {
	tmpl, err := parseTemplate(text)
	if err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("field", "notification.template").
			Build()
	}
	l := logger.OrDiscard(log).Module("notification")
	return &ShoutrrrSink{
		name:     "shoutrrr",
		instance: instance,
		title:    title,
		sender:   snd,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig(), "shoutrrr", l),
		limiter:  NewPushRateLimiter(DefaultPushRateLimiterConfig()),
		tmpl:     func(d *TemplateData) (string, error) { return render(tmpl, d) },
		log:      l,
	}, nil
}

// Name implements analysis.AlertSink.
func (s *ShoutrrrSink) Name() string { return s.name }

// Deliver pushes the alert if the outcome is critical.
func (s *ShoutrrrSink) Deliver(ctx context.Context, o *model.AnalysisOutcome) error {
	if o == nil || o.Kind != model.KindCritical {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.limiter.Allow() {
		s.log.Warn("critical alert dropped by rate limit", logger.String("request_id", o.RequestID))
		return errors.New(ErrRateLimited).
			Component("notification").
			Category(errors.CategoryLimit).
			Context("request_id", o.RequestID).
			Build()
	}

	msg, err := s.tmpl(NewTemplateData(s.instance, o))
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryIntegration).
			Context("operation", "render_template").
			Build()
	}

	params := stypes.Params{}
	if s.title != "" {
		params.SetTitle(s.title)
	}

	err = s.breaker.Call(ctx, func(context.Context) error {
		return firstError(s.sender.Send(msg, &params))
	})
	if err != nil {
		return errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("request_id", o.RequestID).
			Build()
	}

	s.log.Info("critical alert pushed", logger.String("request_id", o.RequestID))
	return nil
}

func firstError(errs []error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
