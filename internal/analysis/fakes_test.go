package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pestalert/pestalert-go/internal/assets"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/imagecheck"
	"github.com/pestalert/pestalert-go/internal/model"
)

type fakeValidator struct {
	err error
}

func (f fakeValidator) Validate(data []byte) (*imagecheck.Image, error) {
	if f.err != nil {
		return nil, errors.New(f.err).Category(errors.CategoryValidation).Build()
	}
	return &imagecheck.Image{Data: data, OriginalFormat: "jpeg", Width: 640, Height: 480}, nil
}

type fakeClassifier struct {
	binary    model.BinaryHealthResult
	multi     model.MultiClassResult
	binaryErr error
	multiErr  error
	pingErr   error
	// block makes ClassifyBinary wait for its context.
	block bool
	panic bool

	calls atomic.Int32
}

func (f *fakeClassifier) ClassifyBinary(ctx context.Context, _ []byte) (model.BinaryHealthResult, error) {
	f.calls.Add(1)
	if f.panic {
		panic("decoder exploded")
	}
	if f.block {
		<-ctx.Done()
		return model.BinaryHealthResult{}, errors.New(ctx.Err()).
			Category(errors.CategoryClassification).
			Build()
	}
	return f.binary, f.binaryErr
}

func (f *fakeClassifier) ClassifyMultiClass(ctx context.Context, _ []byte) (model.MultiClassResult, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return model.MultiClassResult{}, err
	}
	return f.multi, f.multiErr
}

func (f *fakeClassifier) Ping(context.Context) error { return f.pingErr }

type fakeRisk struct {
	risk model.EnvironmentalRisk
	err  error
}

func (f fakeRisk) GetRisk(context.Context, float64, float64) (model.EnvironmentalRisk, error) {
	return f.risk, f.err
}

func (fakeRisk) Name() string { return "fake" }

type fakeAssets struct {
	missing map[model.AudioCategory]bool
}

func (f fakeAssets) Resolve(_ context.Context, c model.AudioCategory) (*model.AudioAsset, error) {
	if f.missing[c] {
		return nil, errors.New(assets.ErrAssetMissing).Category(errors.CategoryNotFound).Build()
	}
	return &model.AudioAsset{Category: c, Filename: string(c) + ".mp3", MIMEType: "audio/mpeg", Size: 3, Data: []byte("ID3")}, nil
}

func (f fakeAssets) CheckAvailability() assets.Availability {
	var missing []model.AudioCategory
	for _, c := range model.AudioCategories() {
		if f.missing[c] {
			missing = append(missing, c)
		}
	}
	return assets.Availability{Available: len(missing) == 0, Missing: missing}
}

func allMissing() fakeAssets {
	return fakeAssets{missing: map[model.AudioCategory]bool{
		model.AudioNormal:    true,
		model.AudioAlert:     true,
		model.AudioUncertain: true,
	}}
}

type recordingSink struct {
	name  string
	err   error
	delay time.Duration

	mu       sync.Mutex
	received []*model.AnalysisOutcome
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, o *model.AnalysisOutcome) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.received = append(s.received, o)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) outcomes() []*model.AnalysisOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AnalysisOutcome(nil), s.received...)
}

type fakeTokens struct {
	err error
}

func (f fakeTokens) Token(context.Context) (string, error) { return "tok", f.err }
func (fakeTokens) IsConfigured() bool                      { return true }
