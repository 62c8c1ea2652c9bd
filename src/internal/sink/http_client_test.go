// FILE: callwisp/src/internal/sink/http_client_test.go
package sink

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callwisp/src/internal/config"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu       sync.Mutex
	batches  [][]map[string]any
	auth     []string
	agents   []string
	requests atomic.Int32
	status   int
}

func newCollector(t *testing.T, status int) (*collector, *httptest.Server) {
	c := &collector{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Entries []map[string]any `json:"entries"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			c.mu.Lock()
			c.batches = append(c.batches, payload.Entries)
			c.auth = append(c.auth, r.Header.Get("Authorization"))
			c.agents = append(c.agents, r.Header.Get("User-Agent"))
			c.mu.Unlock()
		}
		w.WriteHeader(c.status)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func httpOptions(url string) *config.HTTPClientSinkOptions {
	opts := config.DefaultHTTPClientSinkOptions()
	opts.URL = url
	opts.BatchSize = 2
	opts.BatchDelayMS = 60000
	opts.Timeout = 2
	opts.MaxRetries = 2
	opts.RetryDelayMS = 1
	return opts
}

func TestHTTPClientSink_BatchesAndFlushesOnClose(t *testing.T) {
	c, srv := newCollector(t, http.StatusOK)
	h, err := NewHTTPClientSink(httpOptions(srv.URL), newTestLogger())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e := callEntry()
		e.FunctionName = fmt.Sprintf("f%d", i)
		require.NoError(t, h.Write(e))
	}
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.NoError(t, h.Write(callEntry()), "writes after close are ignored")

	assert.Equal(t, 3, c.total())
	assert.Equal(t, int32(2), c.requests.Load())
	assert.Equal(t, "", c.auth[0])
	assert.True(t, strings.HasPrefix(c.agents[0], "CallWisp/"))

	names := map[any]bool{}
	for _, b := range c.batches {
		for _, e := range b {
			names[e["function_name"]] = true
		}
	}
	assert.Equal(t, map[any]bool{"f0": true, "f1": true, "f2": true}, names)

	stats := h.GetStats()
	assert.Equal(t, uint64(3), stats.TotalProcessed)
	assert.Equal(t, uint64(2), stats.Details["total_batches"])
	assert.Equal(t, uint64(0), stats.Details["failed_batches"])
}

func TestHTTPClientSink_TimerFlush(t *testing.T) {
	c, srv := newCollector(t, http.StatusOK)
	opts := httpOptions(srv.URL)
	opts.BatchSize = 100
	opts.BatchDelayMS = 20
	h, err := NewHTTPClientSink(opts, newTestLogger())
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Write(callEntry()))
	assert.Eventually(t, func() bool { return c.total() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPClientSink_JWTBearer(t *testing.T) {
	c, srv := newCollector(t, http.StatusOK)
	opts := httpOptions(srv.URL)
	opts.JWTSecret = "s3cret"
	opts.JWTIssuer = "edge-1"
	h, err := NewHTTPClientSink(opts, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, h.Write(callEntry()))
	require.NoError(t, h.Close())

	require.Len(t, c.auth, 1)
	raw, found := strings.CutPrefix(c.auth[0], "Bearer ")
	require.True(t, found)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "edge-1", claims.Issuer)
	assert.Equal(t, "callwisp", claims.Subject)
}

func TestHTTPClientSink_RetryPolicy(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		requests int32
	}{
		{"ClientErrorNotRetried", http.StatusBadRequest, 1},
		{"ServerErrorRetried", http.StatusBadGateway, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, srv := newCollector(t, tc.status)
			h, err := NewHTTPClientSink(httpOptions(srv.URL), newTestLogger())
			require.NoError(t, err)

			require.NoError(t, h.Write(callEntry()))
			require.NoError(t, h.Close())

			assert.Equal(t, tc.requests, c.requests.Load())
			stats := h.GetStats()
			assert.Equal(t, uint64(1), stats.Details["failed_batches"])
			assert.Equal(t, uint64(1), stats.TotalFailed)
		})
	}
}

func TestHTTPClientSink_InvalidOptions(t *testing.T) {
	_, err := NewHTTPClientSink(nil, nil)
	assert.Error(t, err)

	_, err = NewHTTPClientSink(&config.HTTPClientSinkOptions{URL: "ftp://x"}, nil)
	assert.Error(t, err)
}

func newWebhookServer(t *testing.T, status int, received *[]map[string]any) *httptest.Server {
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		if json.Unmarshal(body, &payload) == nil {
			mu.Lock()
			*received = append(*received, payload)
			mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}
