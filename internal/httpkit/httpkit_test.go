package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHeader(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get(name)))
	}
}

func get(t *testing.T, c *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := c.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewClient_Timeouts(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewClient().Timeout)
	assert.Equal(t, 5*time.Second, NewClient(WithTimeout(5*time.Second)).Timeout)
	assert.Zero(t, NewClient(WithTimeout(0)).Timeout)
}

func TestNewClient_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(echoHeader("User-Agent"))
	defer srv.Close()

	_, body := get(t, NewClient(), srv.URL)
	assert.True(t, strings.HasPrefix(body, "designer-agent/"), body)
}

func TestNewClient_CustomUserAgent(t *testing.T) {
	srv := httptest.NewServer(echoHeader("User-Agent"))
	defer srv.Close()

	_, body := get(t, NewClient(WithUserAgent("TestBot/1.0")), srv.URL)
	assert.Equal(t, "TestBot/1.0", body)
}

func TestNewClient_HeaderDoesNotOverrideCaller(t *testing.T) {
	srv := httptest.NewServer(echoHeader("X-Api-Key"))
	defer srv.Close()

	c := NewClient(WithHeader("X-Api-Key", "default"))
	_, body := get(t, c, srv.URL)
	assert.Equal(t, "default", body)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "caller")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "caller", string(got))
}

func TestRetry_OnThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(2, time.Millisecond), WithRetryOnThrottle())
	status, body := get(t, c, srv.URL)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetry_ThrottleIgnoredWithoutOption(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	status, _ := get(t, NewClient(WithRetry(3, time.Millisecond)), srv.URL)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, int32(1), calls.Load())
}

type flakyTransport struct {
	fails atomic.Int32
	calls atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if n <= f.fails.Load() {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestRetry_OnDialFailure(t *testing.T) {
	ft := &flakyTransport{}
	ft.fails.Store(2)

	c := NewClient(WithTransport(ft), WithRetry(3, time.Millisecond))
	status, body := get(t, c, "http://example.invalid/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(3), ft.calls.Load())
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	ft := &flakyTransport{}
	ft.fails.Store(10)

	c := NewClient(WithTransport(ft), WithRetry(2, time.Millisecond))
	_, err := c.Get("http://example.invalid/")
	require.Error(t, err)
	assert.Equal(t, int32(3), ft.calls.Load())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{syscall.EHOSTUNREACH, true},
		{fmt.Errorf("wrapped: %w", syscall.ENETUNREACH), true},
		{&net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{syscall.ECONNRESET, false},
		{io.EOF, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("3600"))
}

func TestReadErrorBody(t *testing.T) {
	assert.Empty(t, ReadErrorBody(nil, 10))
	got := ReadErrorBody(io.NopCloser(strings.NewReader("abcdefghij")), 4)
	assert.Equal(t, "abcd", got)
}
