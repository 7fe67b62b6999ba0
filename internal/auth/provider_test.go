package auth

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
)

const testTokenURL = "https://auth.example.test/token"

func testSettings() conf.AuthSettings {
	return conf.AuthSettings{
		Mode:         conf.AuthModeClientCredentials,
		TokenURL:     testTokenURL,
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshSkew:  time.Minute,
		Timeout:      2 * time.Second,
	}
}

// newMockedProvider returns a provider whose token requests hit a private mock transport.
func newMockedProvider(t *testing.T, responder httpmock.Responder, opts ...Option) (*ClientCredentials, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, testTokenURL, responder)
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: mock})}, opts...)
	return NewClientCredentials(testSettings(), opts...), mock
}

func tokenResponder(token string, expiresIn int) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func TestClientCredentials_CachesToken(t *testing.T) {
	t.Parallel()

	p, mock := newMockedProvider(t, tokenResponder("tok-1", 3600))

	for range 3 {
		tok, err := p.Token(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestClientCredentials_RefreshesWithinSkew(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	responder := func(*http.Request) (*http.Response, error) {
		n := calls.Add(1)
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"access_token": map[int32]string{1: "first", 2: "second"}[n],
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}

	now := time.Now()
	var offset atomic.Int64
	clock := func() time.Time { return now.Add(time.Duration(offset.Load())) }

	p, _ := newMockedProvider(t, responder, WithClock(clock))

	tok, err := p.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	// 59m30s later the token is inside the one minute skew window
	offset.Store(int64(59*time.Minute + 30*time.Second))
	tok, err = p.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestClientCredentials_SingleFlightRefresh(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	responder := func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		<-release
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"access_token": "shared",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
	p, _ := newMockedProvider(t, responder)

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Go(func() {
			tokens[i], errs[i] = p.Token(t.Context())
		})
	}

	// Give every caller time to join the in-flight refresh
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", tokens[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientCredentials_CallerCancellationDoesNotPoisonFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	responder := func(*http.Request) (*http.Response, error) {
		<-release
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"access_token": "late",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
	p, _ := newMockedProvider(t, responder)

	ctx, cancel := context.WithCancel(t.Context())
	impatient := make(chan error, 1)
	go func() {
		_, err := p.Token(ctx)
		impatient <- err
	}()

	patient := make(chan string, 1)
	go func() {
		tok, _ := p.Token(t.Context())
		patient <- tok
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	err := <-impatient
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.Equal(t, "late", <-patient)
}

func TestClientCredentials_Errors(t *testing.T) {
	t.Parallel()

	t.Run("upstream rejects", func(t *testing.T) {
		t.Parallel()
		p, _ := newMockedProvider(t, httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"invalid_client"}`))
		_, err := p.Token(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		p := NewClientCredentials(conf.AuthSettings{TokenURL: testTokenURL})
		assert.False(t, p.IsConfigured())
		_, err := p.Token(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryAuth))
	})
}

func TestStaticAndNone(t *testing.T) {
	t.Parallel()

	tok, err := Static("abc").Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Static("").Token(t.Context())
	require.Error(t, err)
	assert.False(t, Static("").IsConfigured())

	tok, err = None{}.Token(t.Context())
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestNewFromSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    string
		want    any
		wantErr bool
	}{
		{conf.AuthModeClientCredentials, &ClientCredentials{}, false},
		{"", &ClientCredentials{}, false},
		{conf.AuthModeStatic, Static(""), false},
		{conf.AuthModeNone, None{}, false},
		{"kerberos", nil, true},
	}

	for _, tt := range tests {
		s := testSettings()
		s.Mode = tt.mode
		p, err := NewFromSettings(s)
		if tt.wantErr {
			require.Error(t, err, tt.mode)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
			continue
		}
		require.NoError(t, err, tt.mode)
		assert.IsType(t, tt.want, p, tt.mode)
	}
}
