package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/gateway"
	"github.com/imbecility/vkr-gateway/pkg/models"
	"github.com/imbecility/vkr-gateway/pkg/view"
)

type fakeUpstream struct {
	mu     sync.Mutex
	status int
	body   string
	urls   []string
}

func (f *fakeUpstream) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.urls = append(f.urls, req.URL.String())
	f.mu.Unlock()
	return &http.Response{
		StatusCode: f.status,
		Status:     http.StatusText(f.status),
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}

func newTestServer(t *testing.T, up *fakeUpstream) *Server {
	t.Helper()
	gw, err := gateway.Assemble(gateway.Config{
		Endpoints: []endpoints.Template{
			{Name: "one", Pattern: "https://one.test/api?u={url}"},
			{Name: "two", Pattern: "https://two.test/api?u={url}"},
		},
		Retries:       -1,
		EndpointDelay: time.Nanosecond,
		BaseDelay:     time.Nanosecond,
	}, up, "")
	require.NoError(t, err)
	gw.Service.EnrichTitles = false

	srv, err := NewServer(0, gw, endpoints.Template{Name: "proxy-target", Pattern: "https://upstream.test/server?vkr={url}"})
	require.NoError(t, err)
	return srv
}

func postForm(t *testing.T, h http.Handler, input string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"url": {input}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const ytPayload = `{"data":{
	"source":"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	"title":"<script>alert(1)</script>Never Gonna",
	"uploader":"Rick",
	"downloads":[
		{"url":"https://rr.example/videoplayback?itag=18","format_id":"18","size":"10 MB"},
		{"url":"https://rr.example/videoplayback?itag=140","format_id":"140"}
	]}}`

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK, body: ytPayload})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `id="downloadBtn"`)
	assert.NotContains(t, rr.Body.String(), `id="container"`)
}

func TestSubmitRendersResult(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK, body: ytPayload}
	srv := newTestServer(t, up)

	rr := postForm(t, srv.Router(), "https://youtu.be/dQw4w9WgXcQ")
	body := rr.Body.String()

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, body, `id="container"`)
	assert.Contains(t, body, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg")
	assert.Contains(t, body, "Never Gonna")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "Available formats: 2")
	assert.Contains(t, body, "background: green")
	assert.Contains(t, body, "background: #3800ff")
	assert.Contains(t, body, `href="/download?name=Never_Gonna_18.mp4&amp;src=`)
	assert.Contains(t, body, `target="_blank"`)
	assert.NotContains(t, body, ` download="`)
	assert.NotContains(t, body, "downloadBtn\" disabled")

	require.Len(t, up.urls, 1)
	assert.Equal(t, "https://one.test/api?u=https%3A%2F%2Fyoutu.be%2FdQw4w9WgXcQ", up.urls[0])
}

func TestSubmitEmptyInput(t *testing.T) {
	up := &fakeUpstream{status: http.StatusOK, body: ytPayload}
	srv := newTestServer(t, up)

	rr := postForm(t, srv.Router(), "   ")
	assert.Contains(t, rr.Body.String(), gateway.MsgEmptyInput)
	assert.Empty(t, up.urls)
}

func TestSubmitAllEndpointsFail(t *testing.T) {
	up := &fakeUpstream{status: http.StatusTooManyRequests, body: `{"error":"slow"}`}
	srv := newTestServer(t, up)

	rr := postForm(t, srv.Router(), "https://youtu.be/dQw4w9WgXcQ")
	body := rr.Body.String()
	assert.Contains(t, body, "Unable to fetch the download link after trying multiple services.")
	assert.Contains(t, body, "Too Many Requests: You are being rate-limited.")
	assert.Len(t, up.urls, 2)
}

func TestSubmitNoDownloadsHidesContainer(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK, body: `{"data":{"downloads":[]}}`})

	rr := postForm(t, srv.Router(), "https://youtu.be/dQw4w9WgXcQ")
	assert.Contains(t, rr.Body.String(), "Server Down due to Too Many Requests.")
	assert.NotContains(t, rr.Body.String(), `id="container"`)
}

func TestIndexWithQueryParam(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK, body: `{"nothing":true}`})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?url="+url.QueryEscape("https://youtu.be/dQw4w9WgXcQ"), nil))

	assert.Contains(t, rr.Body.String(), "Issue: Unable to retrieve the download link.")
}

func TestAPIQuery(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK, body: ytPayload})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/query?url="+url.QueryEscape("https://youtu.be/dQw4w9WgXcQ"), nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "youtube", resp.Platform)
	assert.Equal(t, "one", resp.Endpoint)
	assert.Equal(t, "dQw4w9WgXcQ", resp.VideoID)
	require.NotNil(t, resp.Data)
	assert.Len(t, resp.Data.Downloads, 2)

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/query", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProxyPassThrough(t *testing.T) {
	up := &fakeUpstream{status: http.StatusServiceUnavailable, body: `{"error":"busy"}`}
	srv := newTestServer(t, up)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/proxy?url="+url.QueryEscape("https://fb.watch/x"), nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"error":"busy"}`, rr.Body.String())
	require.Len(t, up.urls, 1)
	assert.Equal(t, "https://upstream.test/server?vkr=https%3A%2F%2Ffb.watch%2Fx", up.urls[0])

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/proxy", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestRenderPageWithoutTemplates(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK})
	srv.Pages = nil

	page := &view.Page{}
	page.ShowError("Please enter a valid video URL.")
	rr := httptest.NewRecorder()
	srv.renderPage(rr, page)

	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Please enter a valid video URL.\n", rr.Body.String())
}

func TestIndexDisablesControlWhileChainRuns(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK})
	release, ok := srv.Gateway.Submitter.Guard.Acquire("192.0.2.1")
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Contains(t, rr.Body.String(), `id="downloadBtn" disabled`)

	release()
	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rr.Body.String(), `id="downloadBtn" disabled`)
}

func TestPageScriptDisablesBeforeDebounce(t *testing.T) {
	srv := newTestServer(t, &fakeUpstream{status: http.StatusOK})
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rr.Body.String()
	disable := strings.Index(body, "btn.disabled = true")
	debounce := strings.Index(body, "setTimeout(")
	require.Positive(t, disable)
	require.Positive(t, debounce)
	assert.Less(t, disable, debounce)
}
