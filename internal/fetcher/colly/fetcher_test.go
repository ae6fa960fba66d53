package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: false, Timeout: time.Second})
	req := catalog.FetchRequest{URL: "https://example.com"}

	collector := f.buildCollector(req, time.Unix(0, 0), &catalog.FetchResponse{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := catalog.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result catalog.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"image/png"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/a.png")},
	})
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, "https://example.com/a.png", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.Error(t, fetchErr)
	assert.Equal(t, "boom", fetchErr.Error())
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(catalog.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>ok</html>"))
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "catalog-test", Timeout: 2 * time.Second})

	resp, err := f.Fetch(context.Background(), catalog.FetchRequest{URL: srv.URL + "/ok"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
	assert.Contains(t, resp.ContentType, "text/html")

	// revisiting the same URL is allowed
	_, err = f.Fetch(context.Background(), catalog.FetchRequest{URL: srv.URL + "/ok"})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), catalog.FetchRequest{URL: srv.URL + "/missing"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := 1024
		if r.URL.Path == "/big" {
			size = 4096
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte{0xAB}, size))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second, MaxBodyBytes: 1024})

	resp, err := f.Fetch(context.Background(), catalog.FetchRequest{URL: srv.URL + "/fits"})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 1024)

	resp, err = f.Fetch(context.Background(), catalog.FetchRequest{URL: srv.URL + "/big"})
	require.ErrorIs(t, err, ErrBodyTooLarge)
	var sizeErr *BodyTooLargeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 1024, sizeErr.Limit)
	assert.Empty(t, resp.Body)
}

func TestOversizedHonoursContentLength(t *testing.T) {
	t.Parallel()

	f := New(Config{MaxBodyBytes: 10})
	assert.False(t, f.oversized(catalog.FetchResponse{Body: []byte("short")}))
	assert.True(t, f.oversized(catalog.FetchResponse{
		Body:    []byte("short"),
		Headers: http.Header{"Content-Length": {"11"}},
	}))
	assert.True(t, f.oversized(catalog.FetchResponse{Body: make([]byte, 11)}))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, catalog.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
