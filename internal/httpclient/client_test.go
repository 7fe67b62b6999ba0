package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		cfg := Config{UserAgent: "TestAgent/1.0"}
		client := New(&cfg)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, "TestAgent/1.0", client.userAgent)
		assert.Equal(t, time.Duration(0), cfg.DefaultTimeout, "caller config must not be mutated")
	})
}

func TestDo_UserAgentAndBody(t *testing.T) {
	t.Parallel()

	var receivedUA string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("success"))
	})

	client := newTestClientWithConfig(t, &Config{UserAgent: "CustomAgent/2.0"})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	// The default timeout context must stay alive until the body is read
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(body))
	assert.Equal(t, "CustomAgent/2.0", receivedUA)
}

func TestDo_DefaultTimeoutApplies(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client := newTestClient(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPost_BodyTypes(t *testing.T) {
	t.Parallel()

	type captured struct {
		contentType string
		body        string
	}
	got := make(chan captured, 1)
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- captured{r.Header.Get("Content-Type"), string(b)}
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t)

	tests := []struct {
		name        string
		contentType string
		body        any
		wantType    string
		wantBody    string
	}{
		{"json struct", "", map[string]int{"a": 1}, "application/json", `{"a":1}`},
		{"string", "text/plain", "hello", "text/plain", "hello"},
		{"bytes", "application/octet-stream", []byte{0x41}, "application/octet-stream", "A"},
		{"nil", "", nil, "", ""},
	}

	for _, tt := range tests {
		resp, err := client.Post(t.Context(), server.URL, tt.contentType, tt.body)
		require.NoError(t, err, tt.name)
		closeResponseBody(t, resp)

		c := <-got
		assert.Equal(t, tt.wantType, c.contentType, tt.name)
		assert.Equal(t, tt.wantBody, c.body, tt.name)
	}
}

func TestHooks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	client := newTestClient(t)

	var before, after atomic.Int32
	var status atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error, d time.Duration) {
		after.Add(1)
		if err == nil {
			status.Store(int32(resp.StatusCode))
		}
		assert.GreaterOrEqual(t, d, time.Duration(0))
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	closeResponseBody(t, resp)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int32(http.StatusTeapot), status.Load())
}

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Do(t.Context(), nil)
	require.Error(t, err)
}
