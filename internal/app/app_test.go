package app

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

const testBase = "https://classifier.example.test"

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Normal.mp3"), []byte("ID3normal"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Alerte.mp3"), []byte("ID3alert"), 0o600))

	s := &conf.Settings{}
	s.Main.Name = "test"
	s.Classifier = conf.ClassifierSettings{
		BaseURL:        testBase,
		BinaryPath:     conf.DefaultBinaryPath,
		MultiClassPath: conf.DefaultMultiClassPath,
		PingPath:       conf.DefaultPingPath,
		Timeout:        2 * time.Second,
	}
	s.Auth.Mode = conf.AuthModeNone
	s.Risk = conf.RiskSettings{Provider: conf.RiskProviderStatic, StaticLevel: "CRITICAL", Timeout: time.Second}
	s.Assets = conf.AssetSettings{Dir: dir, Normal: "Normal.mp3", Alert: "Alerte.mp3", Uncertain: "Incertaine.mp3"}
	s.Analysis = conf.AnalysisSettings{
		ClassificationTimeout: 2 * time.Second,
		RiskTimeout:           time.Second,
		AssetTimeout:          time.Second,
		SinkTimeout:           time.Second,
	}
	return s
}

func leafJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for y := range 128 {
		for x := range 128 {
			img.Set(x, y, color.RGBA{R: uint8(x * y % 256), G: uint8(x * 2), B: uint8(y * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newMockedApp(t *testing.T, s *conf.Settings) (*App, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	a, err := New(s, logger.NewDiscard(), WithHTTPConfig(&httpclient.Config{Transport: mock}))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mock
}

func TestNewRejectsBadSettings(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Risk.Provider = "crystal-ball"
	_, err := New(s, nil)
	require.Error(t, err)

	s = testSettings(t)
	s.Auth.Mode = "kerberos"
	_, err = New(s, nil)
	require.Error(t, err)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	t.Parallel()

	a, mock := newMockedApp(t, testSettings(t))
	mock.RegisterResponder(http.MethodPost, testBase+conf.DefaultBinaryPath,
		httpmock.NewStringResponder(http.StatusOK, `{"HLT":0.1,"NOT_HLT":0.9}`))
	mock.RegisterResponder(http.MethodPost, testBase+conf.DefaultMultiClassPath,
		httpmock.NewStringResponder(http.StatusOK, `{"HLT":0.05,"FAW":0.85,"NLB":0.1}`))

	outcome, err := a.Orchestrator.Analyze(t.Context(), leafJPEG(t), model.FarmerContext{
		ID:       "+221771234567",
		Location: model.Location{Lat: 14.7, Lon: -17.4},
		Tier:     model.TierBasic,
	})
	require.NoError(t, err)

	assert.Equal(t, model.KindCritical, outcome.Kind)
	assert.Equal(t, "FAW", outcome.MultiClass.Top.Label)
	require.NotNil(t, outcome.Audio)
	assert.Equal(t, model.AudioAlert, outcome.Audio.Category)
	assert.Empty(t, outcome.Degradations)

	assert.Equal(t, 2, mock.GetTotalCallCount())
	n, err := testutil.GatherAndCount(a.Metrics.Registry(), "pestalert_upstream_requests_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestAnalyzeClassifierDown(t *testing.T) {
	t.Parallel()

	a, mock := newMockedApp(t, testSettings(t))
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	outcome, err := a.Orchestrator.Analyze(t.Context(), leafJPEG(t), model.FarmerContext{ID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, model.KindDegraded, outcome.Kind)
	assert.False(t, outcome.Decision.Critical)
	assert.NotEmpty(t, outcome.Decision.Message)
}

func TestStatusReportsMissingVoiceNote(t *testing.T) {
	t.Parallel()

	a, mock := newMockedApp(t, testSettings(t))
	mock.RegisterResponder(http.MethodGet, testBase+conf.DefaultPingPath,
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	st := a.Orchestrator.Status(t.Context())
	assert.Equal(t, "warning", st.Status)
	assert.Equal(t, []model.AudioCategory{model.AudioUncertain}, st.MissingAudio)
	assert.Equal(t, "static", st.RiskProvider)
}

func TestSinksFromSettings(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Notification = conf.NotificationSettings{Enabled: true} // no URLs: skipped
	a, err := New(s, logger.NewDiscard())
	require.NoError(t, err)
	a.Close()

	b, err := New(testSettings(t), nil, WithoutSinks())
	require.NoError(t, err)
	b.Close()
}
