package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clientFor(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, port, ok := strings.Cut(u.Host, ":")
	require.True(t, ok)
	return New(host, port)
}

func TestClient_URL(t *testing.T) {
	c := New("127.0.0.1", "8080")
	require.Equal(t, "http://127.0.0.1:8080", c.URL(""))
	require.Equal(t, "http://127.0.0.1:8080/health", c.URL("/health"))
	require.Equal(t, "http://127.0.0.1:8080/health", c.URL("health"))

	c, err := NewForBase("http://127.0.0.1:8080/api/v1/")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/api/v1/users", c.URL("users"))
	require.Equal(t, "http://127.0.0.1:8080/admin", c.URL("/admin"))
}

func TestClient_Methods(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	c := clientFor(t, server)
	ctx := context.Background()

	resp, err := c.Get(ctx, "/items")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.MethodGet, gotMethod)
	require.Equal(t, "/items", gotPath)

	resp, err = c.Post(ctx, "/items", strings.NewReader("payload"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "payload", gotBody)

	resp, err = c.Delete(ctx, "/items")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.MethodDelete, gotMethod)
}

func TestWaitForStatus_SucceedsOnceReady(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	c := clientFor(t, server)

	err := c.WaitForStatus(context.Background(), "/health", http.StatusOK, 5*time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitForStatus_TimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	c := clientFor(t, server)

	err := c.WaitForStatus(context.Background(), "/health", http.StatusOK, 300*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "got status 503")
}

func TestWaitForStatus_RetriesConnectionErrors(t *testing.T) {
	c := New("127.0.0.1", "1")

	start := time.Now()
	err := c.WaitForStatus(context.Background(), "/health", http.StatusOK, 300*time.Millisecond)
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}
