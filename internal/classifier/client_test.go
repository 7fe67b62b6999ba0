package classifier

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/auth"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/model"
)

const (
	testBase       = "https://classifier.example.test"
	testBinaryURL  = testBase + conf.DefaultBinaryPath
	testMultiURL   = testBase + conf.DefaultMultiClassPath
	testPingURL    = testBase + conf.DefaultPingPath
	testImageBytes = "\xff\xd8\xff\xe0fake-jpeg"
)

func testSettings() conf.ClassifierSettings {
	return conf.ClassifierSettings{
		BaseURL:        testBase + "/",
		BinaryPath:     conf.DefaultBinaryPath,
		MultiClassPath: conf.DefaultMultiClassPath,
		PingPath:       conf.DefaultPingPath,
		Timeout:        2 * time.Second,
	}
}

// newMockedClient wires a classifier to a private httpmock transport.
func newMockedClient(t *testing.T, s conf.ClassifierSettings, tokens auth.TokenProvider) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{Transport: mock})
	t.Cleanup(hc.Close)
	return New(s, hc, tokens, nil), mock
}

// checkUpload asserts the request carries the bearer token and the image part.
func checkUpload(t *testing.T, req *http.Request, wantToken string) {
	t.Helper()
	assert.Equal(t, "Bearer "+wantToken, req.Header.Get("Authorization"))

	require.NoError(t, req.ParseMultipartForm(1<<20))
	file, header, err := req.FormFile("image")
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, testImageBytes, string(data))
}

func TestClassifyBinary(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, testSettings(), auth.Static("tok"))
	mock.RegisterResponder(http.MethodPost, testBinaryURL, func(req *http.Request) (*http.Response, error) {
		checkUpload(t, req, "tok")
		return httpmock.NewStringResponse(http.StatusOK, `{"HLT":0.12,"NOT_HLT":0.88}`), nil
	})

	res, err := c.ClassifyBinary(t.Context(), []byte(testImageBytes))
	require.NoError(t, err)
	assert.Equal(t, model.Diseased, res.Prediction)
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
	assert.False(t, res.ObservedAt.IsZero())
	assert.NotNil(t, res.ProcessingTime)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestClassifyMultiClass(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, testSettings(), auth.Static("tok"))
	mock.RegisterResponder(http.MethodPost, testMultiURL, func(req *http.Request) (*http.Response, error) {
		checkUpload(t, req, "tok")
		return httpmock.NewStringResponse(http.StatusOK,
			`{"HLT":0.02,"FAW":0.85,"NLB":0.08,"CR":0.05}`), nil
	})

	res, err := c.ClassifyMultiClass(t.Context(), []byte(testImageBytes))
	require.NoError(t, err)
	require.Len(t, res.All, 4)
	assert.Equal(t, res.All[0], res.Top)
	assert.Equal(t, "FAW", res.Top.Label)
	assert.Equal(t, model.RiskCritical, res.Top.Tier)
}

func TestClassify_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tokens    auth.TokenProvider
		responder httpmock.Responder
		contains  string
	}{
		{
			name:      "server error",
			tokens:    auth.Static("tok"),
			responder: httpmock.NewStringResponder(http.StatusInternalServerError, "model unavailable"),
			contains:  "HTTP 500: model unavailable",
		},
		{
			name:      "malformed body",
			tokens:    auth.Static("tok"),
			responder: httpmock.NewStringResponder(http.StatusOK, `<html>gateway</html>`),
			contains:  "malformed response",
		},
		{
			name:      "transport error",
			tokens:    auth.Static("tok"),
			responder: httpmock.NewErrorResponder(io.ErrUnexpectedEOF),
			contains:  "unexpected EOF",
		},
		{
			name:      "token failure",
			tokens:    auth.Static(""),
			responder: httpmock.NewStringResponder(http.StatusOK, `{"HLT":0.9}`),
			contains:  "token acquisition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, mock := newMockedClient(t, testSettings(), tt.tokens)
			mock.RegisterResponder(http.MethodPost, testBinaryURL, tt.responder)

			_, err := c.ClassifyBinary(t.Context(), []byte(testImageBytes))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.True(t, errors.IsCategory(err, errors.CategoryClassification))
		})
	}
}

func TestClassify_TimeoutIsClassificationError(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.Timeout = 50 * time.Millisecond
	c, mock := newMockedClient(t, s, auth.None{})
	mock.RegisterResponder(http.MethodPost, testMultiURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	_, err := c.ClassifyMultiClass(t.Context(), []byte(testImageBytes))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, errors.IsCategory(err, errors.CategoryClassification))
}

func TestClassify_NoneAuthOmitsHeader(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, testSettings(), auth.None{})
	mock.RegisterResponder(http.MethodPost, testBinaryURL, func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get("Authorization"))
		return httpmock.NewStringResponse(http.StatusOK, `{"health":"healthy"}`), nil
	})

	res, err := c.ClassifyBinary(t.Context(), []byte(testImageBytes))
	require.NoError(t, err)
	assert.Equal(t, model.Healthy, res.Prediction)
}

func TestClassify_RateLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.RateLimit = 0.001
	s.Burst = 1
	c, mock := newMockedClient(t, s, auth.None{})
	mock.RegisterResponder(http.MethodPost, testBinaryURL,
		httpmock.NewStringResponder(http.StatusOK, `{"HLT":0.9}`))

	_, err := c.ClassifyBinary(t.Context(), []byte(testImageBytes))
	require.NoError(t, err)

	// Burst is spent; the next token is minutes away
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ClassifyBinary(ctx, []byte(testImageBytes))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limiter"))
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestPing(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, testSettings(), auth.Static("tok"))
	mock.RegisterResponder(http.MethodGet, testPingURL, httpmock.NewStringResponder(http.StatusOK, "pong"))
	require.NoError(t, c.Ping(t.Context()))

	c2, mock2 := newMockedClient(t, testSettings(), auth.Static("tok"))
	mock2.RegisterResponder(http.MethodGet, testPingURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	err := c2.Ping(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}
