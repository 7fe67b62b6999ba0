// Package analysis coordinates one crop photo through validation,
// classification, environmental risk, the alert decision and voice-note
// selection, and always produces some response unless the photo is invalid.
package analysis

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pestalert/pestalert-go/internal/advisory"
	"github.com/pestalert/pestalert-go/internal/assets"
	"github.com/pestalert/pestalert-go/internal/auth"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/imagecheck"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
	"github.com/pestalert/pestalert-go/internal/observability/metrics"
	"github.com/pestalert/pestalert-go/internal/privacy"
	"github.com/pestalert/pestalert-go/internal/risk"
)

const (
	defaultClassificationTimeout = 30 * time.Second
	defaultRiskTimeout           = 5 * time.Second
	defaultAssetTimeout          = 2 * time.Second
	defaultSinkTimeout           = 10 * time.Second
)

// ErrServiceUnavailable is wrapped by every analysis-service error.
var ErrServiceUnavailable = errors.NewStd("analysis service unavailable")

// ImageValidator inspects and normalizes the uploaded photo.
type ImageValidator interface {
	Validate(data []byte) (*imagecheck.Image, error)
}

// Classifier runs the two upstream classification calls.
type Classifier interface {
	ClassifyBinary(ctx context.Context, image []byte) (model.BinaryHealthResult, error)
	ClassifyMultiClass(ctx context.Context, image []byte) (model.MultiClassResult, error)
	Ping(ctx context.Context) error
}

// AssetResolver returns voice notes by category.
type AssetResolver interface {
	Resolve(ctx context.Context, category model.AudioCategory) (*model.AudioAsset, error)
	CheckAvailability() assets.Availability
}

// AlertSink receives every finished outcome. Sinks filter on their own.
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, outcome *model.AnalysisOutcome) error
}

// Deps are the collaborators of an Orchestrator. Validator, Classifier,
// Risk and Assets are required.
type Deps struct {
	Validator  ImageValidator
	Classifier Classifier
	Tokens     auth.TokenProvider
	Risk       risk.Provider
	Assets     AssetResolver
	Sinks      []AlertSink

	Metrics      *metrics.AnalysisMetrics
	AlertMetrics *metrics.NotificationMetrics
	Logger       logger.Logger
}

// Orchestrator is the analysis façade. Safe for concurrent use; all
// per-request state lives in a pipeline value.
type Orchestrator struct {
	validator  ImageValidator
	classifier Classifier
	tokens     auth.TokenProvider
	risk       risk.Provider
	assets     AssetResolver
	sinks      []AlertSink

	metrics      *metrics.AnalysisMetrics
	alertMetrics *metrics.NotificationMetrics
	log          logger.Logger

	classificationTimeout time.Duration
	riskTimeout           time.Duration
	assetTimeout          time.Duration
	sinkTimeout           time.Duration

	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

// New creates an orchestrator.
func New(s conf.AnalysisSettings, d Deps) (*Orchestrator, error) {
	if d.Validator == nil || d.Classifier == nil || d.Risk == nil || d.Assets == nil {
		return nil, errors.Newf("analysis: validator, classifier, risk provider and assets are required").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Orchestrator{
		validator:             d.Validator,
		classifier:            d.Classifier,
		tokens:                d.Tokens,
		risk:                  d.Risk,
		assets:                d.Assets,
		sinks:                 d.Sinks,
		metrics:               d.Metrics,
		alertMetrics:          d.AlertMetrics,
		log:                   logger.OrDiscard(d.Logger).Module("analysis"),
		classificationTimeout: positiveOr(s.ClassificationTimeout, defaultClassificationTimeout),
		riskTimeout:           positiveOr(s.RiskTimeout, defaultRiskTimeout),
		assetTimeout:          positiveOr(s.AssetTimeout, defaultAssetTimeout),
		sinkTimeout:           positiveOr(s.SinkTimeout, defaultSinkTimeout),
		now:                   time.Now,
		newID:                 uuid.NewString,
	}, nil
}

// Analyze runs the full pipeline for one photo. A trace id already present
// in ctx becomes the request id. The only errors returned
// are validation errors (CategoryValidation) and analysis-service errors
// (CategoryAnalysis). Any upstream failure is absorbed by a recovery step
// and recorded in the outcome's Degradations.
func (o *Orchestrator) Analyze(ctx context.Context, image []byte, farmer model.FarmerContext) (outcome *model.AnalysisOutcome, err error) {
	start := o.now()
	requestID := logger.TraceIDFromContext(ctx)
	if requestID == "" {
		requestID = o.newID()
		ctx = logger.WithTraceID(ctx, requestID)
	}
	log := o.log.With(
		logger.String("request_id", requestID),
		logger.String("farmer_id", privacy.MaskFarmerID(farmer.ID)))

	done := o.metrics.AnalysisStarted(len(image))
	defer done()

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			outcome = nil
			err = o.serviceError(fmt.Errorf("panic: %v", r), requestID, "assemble")
		}
		switch {
		case err == nil:
			o.metrics.RecordAnalysis(string(outcome.Kind), o.now().Sub(start))
		case errors.IsCategory(err, errors.CategoryValidation):
			o.metrics.RecordAnalysis("rejected", o.now().Sub(start))
		default:
			o.metrics.RecordAnalysis("failed", o.now().Sub(start))
		}
	}()

	farmer.Tier = model.ParseSubscriptionTier(string(farmer.Tier))

	stageStart := o.now()
	img, verr := o.validator.Validate(image)
	o.metrics.RecordStage(stageValidation, o.now().Sub(stageStart))
	if verr != nil {
		log.Info("photo rejected", logger.Error(verr), logger.Int("bytes", len(image)))
		o.metrics.RecordValidationFailure(rejectionReason(verr))
		return nil, o.validationError(verr, requestID)
	}

	p := &pipeline{farmer: farmer, image: img.Data, startedAt: start}
	for _, st := range o.stages() {
		stageStart = o.now()
		st.run(ctx, p)
		o.metrics.RecordStage(st.name, o.now().Sub(stageStart))

		if ferr := o.recover(ctx, log, p, st.name); ferr != nil {
			return nil, ferr
		}
	}

	outcome = p.outcome(requestID, o.now())
	if outcome.Decision.Critical {
		o.metrics.RecordCriticalAlert()
		log.Warn("critical pest alert",
			logger.String("label", outcome.MultiClass.Top.Label),
			logger.Float64("confidence", outcome.MultiClass.Top.Confidence),
			logger.String("alert_level", string(outcome.Risk.AlertLevel)),
			logger.Float64("lat", farmer.Location.Lat),
			logger.Float64("lon", farmer.Location.Lon))
	}
	log.Info("analysis completed",
		logger.String("kind", string(outcome.Kind)),
		logger.Int("degradations", len(outcome.Degradations)),
		logger.Duration("duration", o.now().Sub(start)))

	o.dispatch(ctx, outcome)
	return outcome, nil
}

// Close waits for in-flight sink deliveries.
func (o *Orchestrator) Close() {
	o.inflight.Wait()
}

type stage struct {
	name string
	run  func(context.Context, *pipeline)
}

// stages lists the pipeline in execution order. Recovery steps are applied
// after the stage they follow.
func (o *Orchestrator) stages() []stage {
	return []stage{
		{stageClassification, o.classify},
		{stageRisk, o.assessRisk},
		{stageDecision, o.decide},
		{stageAudio, o.selectAudio},
	}
}

// classify runs both calls concurrently and joins on both. Results are read
// only after Wait returns.
func (o *Orchestrator) classify(ctx context.Context, p *pipeline) {
	var (
		binary model.BinaryHealthResult
		multi  model.MultiClassResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return safely("binary classification", func() error {
			cctx, cancel := context.WithTimeout(gctx, o.classificationTimeout)
			defer cancel()
			var err error
			binary, err = o.classifier.ClassifyBinary(cctx, p.image)
			return err
		})
	})
	g.Go(func() error {
		return safely("multi-class classification", func() error {
			cctx, cancel := context.WithTimeout(gctx, o.classificationTimeout)
			defer cancel()
			var err error
			multi, err = o.classifier.ClassifyMultiClass(cctx, p.image)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		p.classErr = err
		o.metrics.RecordStageError(stageClassification, categoryOf(err))
		return
	}
	p.binary, p.multi = binary, multi
}

func (o *Orchestrator) assessRisk(ctx context.Context, p *pipeline) {
	rctx, cancel := context.WithTimeout(ctx, o.riskTimeout)
	defer cancel()

	var r model.EnvironmentalRisk
	err := safely("risk lookup", func() error {
		var err error
		r, err = o.risk.GetRisk(rctx, p.farmer.Location.Lat, p.farmer.Location.Lon)
		return err
	})
	if err != nil {
		p.riskErr = err
		o.metrics.RecordStageError(stageRisk, categoryOf(err))
		return
	}
	p.risk = r
}

func (o *Orchestrator) decide(_ context.Context, p *pipeline) {
	if p.degraded(stepClassification) {
		return
	}
	p.decision = advisory.Decide(p.binary, p.multi, p.risk, p.farmer.Tier)
}

func (o *Orchestrator) selectAudio(ctx context.Context, p *pipeline) {
	category := model.AudioNormal
	if p.decision.Critical {
		category = model.AudioAlert
	}

	actx, cancel := context.WithTimeout(ctx, o.assetTimeout)
	defer cancel()

	var a *model.AudioAsset
	err := safely("voice note lookup", func() error {
		var err error
		a, err = o.assets.Resolve(actx, category)
		return err
	})
	if err != nil {
		p.audioErr = err
		o.metrics.RecordStageError(stageAudio, categoryOf(err))
		return
	}
	p.audio = a
}

// recover applies the recovery steps registered after stage. A cancelled
// request never commits a fallback.
func (o *Orchestrator) recover(ctx context.Context, log logger.Logger, p *pipeline, stage string) error {
	for _, step := range recoverySteps {
		if step.after != stage {
			continue
		}
		cause := step.cause(p)
		if cause == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Info("analysis cancelled", logger.String("stage", stage), logger.Error(err))
			return o.serviceError(err, logger.TraceIDFromContext(ctx), stage)
		}

		step.apply(p)
		p.degradations = append(p.degradations, model.Degradation{
			Step:     step.name,
			Replaces: step.replaces,
			Reason:   cause.Error(),
		})
		o.metrics.RecordDegradation(step.name)

		fields := []logger.Field{
			logger.String("step", step.name),
			logger.String("replaces", step.replaces),
			logger.Error(cause),
		}
		if step.name == stepClassification {
			log.Error("classification failed, using degraded outcome", fields...)
		} else {
			log.Warn("recovery step applied", fields...)
		}
	}
	return nil
}

// dispatch hands the outcome to every sink in the background. Deliveries are
// detached from the request context and bounded by the sink timeout.
func (o *Orchestrator) dispatch(ctx context.Context, outcome *model.AnalysisOutcome) {
	if len(o.sinks) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		o.inflight.Go(func() {
			o.deliver(base, sink, outcome)
		})
	}
}

func (o *Orchestrator) deliver(ctx context.Context, sink AlertSink, outcome *model.AnalysisOutcome) {
	ctx, cancel := context.WithTimeout(ctx, o.sinkTimeout)
	defer cancel()

	start := o.now()
	err := safely("sink "+sink.Name(), func() error {
		return sink.Deliver(ctx, outcome)
	})
	elapsed := o.now().Sub(start)

	if err != nil {
		o.alertMetrics.RecordDelivery(sink.Name(), metrics.StatusError, elapsed)
		o.alertMetrics.RecordDeliveryError(sink.Name(), categoryOf(err))
		if errors.Is(err, context.DeadlineExceeded) {
			o.alertMetrics.RecordTimeout(sink.Name())
		}
		o.log.Warn("sink delivery failed",
			logger.String("sink", sink.Name()),
			logger.String("request_id", outcome.RequestID),
			logger.Error(err))
		return
	}
	o.alertMetrics.RecordDelivery(sink.Name(), metrics.StatusSuccess, elapsed)
}

func (o *Orchestrator) validationError(err error, requestID string) error {
	return errors.New(err).
		Component("analysis").
		Category(errors.CategoryValidation).
		Context("request_id", requestID).
		Build()
}

func (o *Orchestrator) serviceError(err error, requestID, stage string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrServiceUnavailable, err)).
		Component("analysis").
		Category(errors.CategoryAnalysis).
		Priority(errors.PriorityHigh).
		Context("request_id", requestID).
		Context("stage", stage).
		Build()
}

// safely runs fn and converts a panic into an error.
func safely(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", what, r)
		}
	}()
	return fn()
}

func categoryOf(err error) string {
	var ce errors.CategorizedError
	if errors.As(err, &ce) {
		return string(ce.ErrorCategory())
	}
	return string(errors.CategoryGeneric)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, imagecheck.ErrEmpty):
		return "empty"
	case errors.Is(err, imagecheck.ErrTooSmall):
		return "too_small"
	case errors.Is(err, imagecheck.ErrTooLarge):
		return "too_large"
	case errors.Is(err, imagecheck.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, imagecheck.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, imagecheck.ErrDimensions):
		return "dimensions"
	default:
		return "other"
	}
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
