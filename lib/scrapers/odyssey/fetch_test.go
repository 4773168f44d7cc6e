package odyssey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		Profile: PortalProfile{
			County:  "testshire",
			BaseURL: baseURL,
			Version: 2003,
		},
		Wait:       time.Millisecond,
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	return client
}

func TestRequestPageRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<html>Record Count: 3</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)
	body, err := client.RequestPage(context.Background(), PageRequest{
		URL:              server.URL,
		Method:           http.MethodGet,
		VerificationText: "Record Count",
	})
	require.NoError(t, err)
	require.Contains(t, body, "Record Count")
	require.EqualValues(t, 3, hits.Load())
}

func TestRequestPageExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	_, err := client.RequestPage(context.Background(), PageRequest{
		URL:    server.URL,
		Method: http.MethodGet,
	})
	require.Error(t, err)

	var perr *PageError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusBadGateway, perr.StatusCode)
	// 2 retries on top of the initial attempt
	require.EqualValues(t, 3, hits.Load())
}

func TestRequestPageMissingMarkerIsNeverRetried(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// the portal's idea of an error page: status 200, wrong content
		_, _ = w.Write([]byte("<html>An unexpected error occurred.</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)
	_, err := client.RequestPage(context.Background(), PageRequest{
		URL:              server.URL,
		Method:           http.MethodGet,
		VerificationText: "Record Count",
	})
	require.Error(t, err)

	var perr *PageError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Body, "unexpected error")
	require.EqualValues(t, 1, hits.Load())
}

type capturingDebug struct {
	names    []string
	contents []string
}

func (d *capturingDebug) Write(name, contents string) {
	d.names = append(d.names, name)
	d.contents = append(d.contents, contents)
}

func TestRequestPageDumpsBodyOnTerminalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>wrong page</html>"))
	}))
	defer server.Close()

	debug := &capturingDebug{}
	client, err := NewClient(Options{
		Profile:    PortalProfile{County: "testshire", BaseURL: server.URL, Version: 2003},
		Wait:       time.Millisecond,
		MaxRetries: 1,
		Debug:      debug,
	})
	require.NoError(t, err)

	_, err = client.RequestPage(context.Background(), PageRequest{
		URL:              server.URL,
		Method:           http.MethodGet,
		VerificationText: "Record Count",
	})
	require.Error(t, err)
	require.Len(t, debug.contents, 1)
	require.Contains(t, debug.contents[0], "wrong page")
}

func TestRequestPageHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, server.URL, 10)
	_, err := client.RequestPage(ctx, PageRequest{
		URL:    server.URL,
		Method: http.MethodGet,
		Wait:   time.Minute,
	})
	require.ErrorIs(t, err, context.Canceled)
}
