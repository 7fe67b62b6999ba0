// Package classifier calls the crop-health classification API.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pestalert/pestalert-go/internal/auth"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

const (
	formField       = "image"
	maxResponseBody = 1 << 20
	maxErrorSnippet = 256

	kindBinary     = "binary"
	kindMultiClass = "multi_class"
)

// Client performs the binary and multi-class classification calls. Safe for
// concurrent use.
type Client struct {
	http    *httpclient.Client
	tokens  auth.TokenProvider
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time

	binaryURL string
	multiURL  string
	pingURL   string
	timeout   time.Duration
}

// New creates a classification client.
func New(s conf.ClassifierSettings, hc *httpclient.Client, tokens auth.TokenProvider, log logger.Logger) *Client {
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{UserAgent: s.UserAgent})
	}
	if tokens == nil {
		tokens = auth.None{}
	}

	base := strings.TrimRight(s.BaseURL, "/")
	c := &Client{
		http:      hc,
		tokens:    tokens,
		log:       logger.OrDiscard(log).Module("classifier"),
		now:       time.Now,
		binaryURL: base + s.BinaryPath,
		multiURL:  base + s.MultiClassPath,
		pingURL:   base + s.PingPath,
		timeout:   s.Timeout,
	}
	if s.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.RateLimit), max(s.Burst, 1))
	}
	return c
}

// ClassifyBinary returns the healthy / diseased verdict for a JPEG image.
func (c *Client) ClassifyBinary(ctx context.Context, image []byte) (model.BinaryHealthResult, error) {
	start := c.now()
	resp, err := c.predict(ctx, kindBinary, c.binaryURL, image)
	if err != nil {
		return model.BinaryHealthResult{}, err
	}

	res, err := resp.binary(start)
	if err != nil {
		return model.BinaryHealthResult{}, c.fail(kindBinary, c.binaryURL, err)
	}
	if res.ProcessingTime == nil {
		d := c.now().Sub(start)
		res.ProcessingTime = &d
	}
	return res, nil
}

// ClassifyMultiClass returns the ranked disease distribution for a JPEG image.
func (c *Client) ClassifyMultiClass(ctx context.Context, image []byte) (model.MultiClassResult, error) {
	resp, err := c.predict(ctx, kindMultiClass, c.multiURL, image)
	if err != nil {
		return model.MultiClassResult{}, err
	}
	return resp.multiClass(), nil
}

// Ping checks that the API is reachable with a valid token.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pingURL, http.NoBody)
	if err != nil {
		return c.fail("ping", c.pingURL, err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return c.fail("ping", c.pingURL, err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return c.fail("ping", c.pingURL, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode/100 != 2 {
		return c.fail("ping", c.pingURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) predict(ctx context.Context, kind, url string, image []byte) (response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(kind, url, fmt.Errorf("rate limiter: %w", err))
		}
	}

	body, contentType, err := multipartImage(image)
	if err != nil {
		return nil, c.fail(kind, url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, c.fail(kind, url, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, c.fail(kind, url, err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, c.fail(kind, url, err)
	}
	defer drainAndClose(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.fail(kind, url, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode/100 != 2 {
		return nil, c.fail(kind, url, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(data)))
	}

	decoded, err := decodeResponse(data)
	if err != nil {
		return nil, c.fail(kind, url, fmt.Errorf("malformed response: %w", err))
	}

	c.log.Debug("prediction received",
		logger.String("kind", kind),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))
	return decoded, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("token acquisition: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// fail wraps err as a classification error.
func (c *Client) fail(kind, url string, err error) error {
	return errors.New(fmt.Errorf("%s prediction failed: %w", kind, err)).
		Component("classifier").
		Category(errors.CategoryClassification).
		Context("kind", kind).
		NetworkContext(url, c.timeout).
		Build()
}

func multipartImage(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="crop.jpg"`, formField))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBody))
	_ = body.Close()
}
