package endpoints

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateBuild(t *testing.T) {
	target := "https://youtu.be/dQw4w9WgXcQ"

	abs := Template{Name: "vkr", Pattern: "https://vkrdownloader.xyz/server?api_key=vkrdownloader&vkr={url}"}
	got, err := abs.Build("", target)
	require.NoError(t, err)
	assert.Equal(t, "https://vkrdownloader.xyz/server?api_key=vkrdownloader&vkr=https%3A%2F%2Fyoutu.be%2FdQw4w9WgXcQ", got)

	rel := Template{Name: "local", Pattern: "/api/proxy?url={url}"}
	assert.True(t, rel.IsRelative())
	_, err = rel.Build("", target)
	assert.ErrorIs(t, err, ErrNoBaseURL)

	got, err = rel.Build("http://localhost:8080/app/", target)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/proxy?url=https%3A%2F%2Fyoutu.be%2FdQw4w9WgXcQ", got)
}

func TestParseTemplates(t *testing.T) {
	got, err := ParseTemplates([]string{
		"local=/api/proxy?url={url}",
		"https://api.example.com/x?key=1&u={url}",
		"/bare?u={url}",
		"  ",
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Template{Name: "local", Pattern: "/api/proxy?url={url}"}, got[0])
	assert.Equal(t, "api.example.com", got[1].Name)
	assert.Equal(t, "https://api.example.com/x?key=1&u={url}", got[1].Pattern)
	assert.Equal(t, "/bare?u={url}", got[2].Pattern)

	_, err = ParseTemplates([]string{"https://no-placeholder.example"})
	assert.Error(t, err)

	_, err = ParseTemplates(nil)
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"source":"https://youtu.be/dQw4w9WgXcQ","downloads":[{"url":"https://cdn/a"}]}}`))
		}))
		defer srv.Close()

		env, err := Fetch(context.Background(), srv.Client(), "test", srv.URL, time.Second)
		require.NoError(t, err)
		require.NotNil(t, env.Data)
		assert.Len(t, env.Data.Downloads, 1)
	})

	t.Run("status error keeps body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
		}))
		defer srv.Close()

		_, err := Fetch(context.Background(), srv.Client(), "test", srv.URL, time.Second)
		var ae *AttemptError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, http.StatusTooManyRequests, ae.Status)
		assert.Equal(t, `{"error":"slow down"}`, ae.Body)
		assert.Equal(t, "Too Many Requests: You are being rate-limited.", ae.Detail())
	})

	t.Run("invalid json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>nope</html>`))
		}))
		defer srv.Close()

		_, err := Fetch(context.Background(), srv.Client(), "test", srv.URL, time.Second)
		var ae *AttemptError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, http.StatusOK, ae.Status)
		assert.Contains(t, ae.Detail(), "Status: parsererror")
		assert.Contains(t, ae.Detail(), "Unable to parse server response.")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := Fetch(context.Background(), srv.Client(), "test", srv.URL, 50*time.Millisecond)
		var ae *AttemptError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, 0, ae.Status)
		assert.Contains(t, ae.Error(), "timeout")
		assert.Equal(t, "Network Error: The server is unreachable.", ae.Detail())
	})
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "Network Error: The server is unreachable.", ErrorDetail(0, "", "", "dial tcp"))
	assert.Equal(t, "Bad Request: The input URL might be incorrect.", ErrorDetail(400, "Bad Request", "", ""))
	assert.Equal(t, "Unauthorized: Please check the API key.", ErrorDetail(401, "Unauthorized", "", ""))
	assert.Equal(t, "Service Unavailable: The server is temporarily overloaded.", ErrorDetail(503, "", "", ""))

	got := ErrorDetail(500, "Internal Server Error", `{"error":"boom"}`, "http status: 500")
	assert.Equal(t, "Status: error, Error: http status: 500, Server Error: boom, HTTP 500: Internal Server Error", got)

	got = ErrorDetail(502, "", "oops", "bad gateway")
	assert.Equal(t, "Status: error, Error: bad gateway, Unable to parse server response., HTTP 502: bad gateway", got)
}

func TestGetVideoTitle(t *testing.T) {
	t.Run("oembed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			_, _ = w.Write([]byte(`{"title":"Real Title"}`))
		}))
		defer srv.Close()
		restore := pointAt(srv.URL)
		defer restore()

		title, err := GetVideoTitle(context.Background(), srv.Client(), "dQw4w9WgXcQ")
		require.NoError(t, err)
		assert.Equal(t, "Real Title", title)
	})

	t.Run("scrape fallback", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		})
		mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html><head>\n<title>Tom &amp; Jerry - YouTube</title>\n</head></html>"))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		restore := pointAt(srv.URL)
		defer restore()

		title, err := GetVideoTitle(context.Background(), srv.Client(), "dQw4w9WgXcQ")
		require.NoError(t, err)
		assert.Equal(t, "Tom & Jerry", title)
	})
}

func pointAt(base string) func() {
	oe, wb := OEmbedBase, WatchBase
	OEmbedBase, WatchBase = base+"/oembed", base+"/watch"
	return func() { OEmbedBase, WatchBase = oe, wb }
}
