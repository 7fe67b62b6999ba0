// Package auth supplies bearer tokens for the crop-health classification API.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
)

// TokenProvider returns a bearer token. An empty token with a nil error means
// requests are sent unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	IsConfigured() bool
}

const (
	defaultRefreshSkew  = 30 * time.Second
	defaultTokenTimeout = 10 * time.Second
	refreshKey          = "token"
)

// ClientCredentials fetches tokens with the OAuth2 client-credentials grant
// and caches them until shortly before expiry. Concurrent callers that find
// the cache stale share a single refresh.
type ClientCredentials struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	skew       time.Duration
	timeout    time.Duration
	log        logger.Logger
	now        func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	token *oauth2.Token
}

// Option customizes a ClientCredentials provider.
type Option func(*ClientCredentials)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *ClientCredentials) { p.httpClient = c }
}

// WithLogger sets the provider logger.
func WithLogger(l logger.Logger) Option {
	return func(p *ClientCredentials) { p.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *ClientCredentials) { p.now = now }
}

// NewClientCredentials creates a provider from auth settings.
func NewClientCredentials(s conf.AuthSettings, opts ...Option) *ClientCredentials {
	p := &ClientCredentials{
		cfg: clientcredentials.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			TokenURL:     s.TokenURL,
			Scopes:       s.Scopes,
		},
		skew:    s.RefreshSkew,
		timeout: s.Timeout,
		now:     time.Now,
	}
	if p.skew <= 0 {
		p.skew = defaultRefreshSkew
	}
	if p.timeout <= 0 {
		p.timeout = defaultTokenTimeout
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrDiscard(p.log).Module("auth")
	return p
}

// IsConfigured reports whether client credentials are present.
func (p *ClientCredentials) IsConfigured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != "" && p.cfg.TokenURL != ""
}

// Token returns a cached token or refreshes it. The cache lock is never held
// across the token request.
func (p *ClientCredentials) Token(ctx context.Context) (string, error) {
	if tok, ok := p.cached(); ok {
		return tok, nil
	}
	if !p.IsConfigured() {
		return "", errors.Newf("client credentials not configured").
			Component("auth").
			Category(errors.CategoryAuth).
			Build()
	}

	// The refresh runs detached from the first caller so that one caller
	// giving up does not fail the others waiting on the same flight.
	ch := p.group.DoChan(refreshKey, func() (any, error) {
		return p.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.New(ctx.Err()).
			Component("auth").
			Category(errors.CategoryAuth).
			Context("operation", "token_wait").
			Build()
	}
}

func (p *ClientCredentials) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil || p.token.AccessToken == "" {
		return "", false
	}
	if !p.token.Expiry.IsZero() && !p.now().Add(p.skew).Before(p.token.Expiry) {
		return "", false
	}
	return p.token.AccessToken, true
}

func (p *ClientCredentials) refresh(ctx context.Context) (string, error) {
	// Another flight may have finished between the cache check and here
	if tok, ok := p.cached(); ok {
		return tok, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	start := time.Now()
	tok, err := p.cfg.Token(ctx)
	if err != nil {
		p.log.Warn("token refresh failed",
			logger.Error(err),
			logger.Duration("duration", time.Since(start)))
		return "", errors.New(err).
			Component("auth").
			Category(errors.CategoryAuth).
			NetworkContext(p.cfg.TokenURL, p.timeout).
			Timing("token_refresh", time.Since(start)).
			Build()
	}

	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()

	p.log.Debug("token refreshed",
		logger.Time("expiry", tok.Expiry),
		logger.Duration("duration", time.Since(start)))
	return tok.AccessToken, nil
}

// Static returns a fixed token.
type Static string

// Token returns the fixed token, failing when it is empty.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.Newf("static token is empty").
			Component("auth").
			Category(errors.CategoryAuth).
			Build()
	}
	return string(s), nil
}

// IsConfigured reports whether a token is set.
func (s Static) IsConfigured() bool { return s != "" }

// None sends requests without credentials.
type None struct{}

// Token always returns an empty token.
func (None) Token(context.Context) (string, error) { return "", nil }

// IsConfigured is always true.
func (None) IsConfigured() bool { return true }

// NewFromSettings builds the provider selected by s.Mode.
func NewFromSettings(s conf.AuthSettings, opts ...Option) (TokenProvider, error) {
	switch s.Mode {
	case conf.AuthModeClientCredentials, "":
		return NewClientCredentials(s, opts...), nil
	case conf.AuthModeStatic:
		return Static(s.StaticToken), nil
	case conf.AuthModeNone:
		return None{}, nil
	default:
		return nil, errors.Newf("unknown auth mode %q", s.Mode).
			Component("auth").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
