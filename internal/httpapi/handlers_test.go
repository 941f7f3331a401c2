package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webshot/internal/browser"
	"webshot/internal/capture"
	"webshot/internal/cdp"
	"webshot/internal/imaging"
	"webshot/internal/observability"
)

// stubService answers Capture with a canned result or error and records
// what the handlers asked for.
type stubService struct {
	mu        sync.Mutex
	requests  []capture.Request
	result    *capture.Result
	err       error
	available bool
}

func (s *stubService) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubService) Probe() bool { return s.available }

func (s *stubService) lastRequest(t *testing.T) capture.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func newTestServer(svc *stubService) *Server {
	return NewServer(ServerConfig{Addr: "127.0.0.1:0"}, svc, observability.Nop())
}

func okResult() *capture.Result {
	return &capture.Result{
		Image:       []byte("fake-webp-bytes"),
		ContentType: "image/webp",
		Width:       640,
		Height:      400,
		Title:       "Example Domain",
		Description: "An example page.",
	}
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetThumbnailBindsQueryParameters(t *testing.T) {
	svc := &stubService{result: okResult()}
	srv := newTestServer(svc)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet,
		"/thumbnail?url=https://example.com&width=320&height=200&format=png", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := svc.lastRequest(t)
	assert.Equal(t, "https://example.com", got.URL)
	assert.Equal(t, 320, got.Width)
	assert.Equal(t, 200, got.Height)
	assert.Equal(t, "png", got.Format)

	var body thumbnailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://example.com", body.URL)
	assert.Equal(t, "image/webp", body.ContentType)
	assert.Equal(t, "Example Domain", body.Title)

	raw, err := base64.StdEncoding.DecodeString(body.ImageData)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-webp-bytes"), raw)
}

func TestGetThumbnailOmittedParametersStayZero(t *testing.T) {
	// Defaulting happens in the pipeline, not in the handler: the service
	// must see the request exactly as the client sent it.
	svc := &stubService{result: okResult()}
	srv := newTestServer(svc)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/thumbnail?url=https://example.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := svc.lastRequest(t)
	assert.Zero(t, got.Width)
	assert.Zero(t, got.Height)
	assert.Empty(t, got.Format)
}

func TestPostThumbnailBindsJSONBody(t *testing.T) {
	svc := &stubService{result: okResult()}
	srv := newTestServer(svc)

	payload := `{"url":"https://example.com","width":800,"height":600,"format":"jpeg"}`
	req := httptest.NewRequest(http.MethodPost, "/thumbnail", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := svc.lastRequest(t)
	assert.Equal(t, "https://example.com", got.URL)
	assert.Equal(t, 800, got.Width)
	assert.Equal(t, 600, got.Height)
	assert.Equal(t, "jpeg", got.Format)
}

func TestPostThumbnailRejectsMalformedBody(t *testing.T) {
	svc := &stubService{result: okResult()}
	srv := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/thumbnail", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(srv, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Kind)
	assert.Empty(t, svc.requests)
}

func TestErrorKindsMapToStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid url", capture.ErrInvalidURL, http.StatusBadRequest, "invalid_url"},
		{"unsupported format", imaging.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"},
		{"call timeout", cdp.ErrCallTimeout, http.StatusRequestTimeout, "protocol_timeout"},
		{"startup timeout", browser.ErrStartupTimeout, http.StatusRequestTimeout, "browser_startup_timeout"},
		{"no browser", browser.ErrBrowserNotFound, http.StatusServiceUnavailable, "browser_not_found"},
		{"capture failed", capture.ErrCaptureFailed, http.StatusInternalServerError, "capture_failed"},
		{"connection closed", cdp.ErrConnectionClosed, http.StatusInternalServerError, "connection_closed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubService{err: tc.err})
			rec := doRequest(srv, httptest.NewRequest(http.MethodGet,
				"/thumbnail?url=https://example.com", nil))

			assert.Equal(t, tc.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHealthReportsBrowserAvailability(t *testing.T) {
	for _, available := range []bool{true, false} {
		srv := newTestServer(&stubService{available: available})
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, available, body.BrowserAvailable)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	srv := newTestServer(&stubService{available: true})
	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv := newTestServer(&stubService{available: true})
	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
