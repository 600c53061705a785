// Package trigger decides whether a media URL can be saved as a file or has to
// be opened in a new browsing context, and serves that decision over HTTP.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
)

const (
	DefaultFilename = "video.mp4"
	checkTimeout    = 15 * time.Second
	maxRedirects    = 10
)

var ErrPrivateTarget = errors.New("target host is on a private network")

type Action int

const (
	// ActionOpen sends the user to the media URL itself.
	ActionOpen Action = iota
	// ActionSave streams the file with an attachment disposition.
	ActionSave
)

func (a Action) String() string {
	if a == ActionSave {
		return "save"
	}
	return "open"
}

type Decision struct {
	Action      Action
	ContentType string
	Reason      string
}

// Checker needs a Client that does not follow redirects itself: do walks them
// so every hop is validated before it is requested.
type Checker struct {
	Client       endpoints.HTTPClient
	AllowPrivate bool
}

// mediaApplicationTypes are the application/* types CDNs use for media files and streaming manifests.
var mediaApplicationTypes = []string{
	"application/octet-stream",
	"application/mp4",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/dash+xml",
}

// IsMediaType accepts video/*, audio/* and the media application types.
// Error pages (html, json, javascript) are not media.
func IsMediaType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "video/") || strings.HasPrefix(mt, "audio/") || slices.Contains(mediaApplicationTypes, mt)
}

// Check issues a HEAD request. Anything but a successful answer with a media
// content type, including transport failures, falls back to ActionOpen.
func (c *Checker) Check(ctx context.Context, mediaURL string) Decision {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, mediaURL)
	if err != nil {
		slog.Warn("Download check failed", "url", mediaURL, "err", err)
		return Decision{Action: ActionOpen, Reason: err.Error()}
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}
	}(resp.Body)

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Decision{Action: ActionOpen, ContentType: ct, Reason: fmt.Sprintf("http status: %d", resp.StatusCode)}
	}
	if !IsMediaType(ct) {
		return Decision{Action: ActionOpen, ContentType: ct, Reason: "unexpected content type"}
	}
	return Decision{Action: ActionSave, ContentType: ct}
}

// ValidateTarget only lets http(s) URLs through, and refuses private hosts unless allowed.
func (c *Checker) ValidateTarget(ctx context.Context, mediaURL string) (*url.URL, error) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	if !c.AllowPrivate && IsPrivateHost(ctx, u.Hostname()) {
		return nil, ErrPrivateTarget
	}
	return u, nil
}

// IsPrivateHost reports loopback, private, link-local and unspecified addresses.
// Hostnames are resolved; a lookup failure is not treated as private.
func IsPrivateHost(ctx context.Context, host string) bool {
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return isPrivateAddr(addr)
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if isPrivateAddr(a) {
			return true
		}
	}
	return false
}

func isPrivateAddr(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() || a.IsUnspecified()
}

// ServeHTTP handles GET /download?src=<media url>&name=<filename>.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	name := sanitizeFilename(r.URL.Query().Get("name"))

	if src == "" {
		http.Error(w, "Invalid download URL", http.StatusBadRequest)
		return
	}
	if _, err := c.ValidateTarget(r.Context(), src); err != nil {
		slog.Warn("Refusing download target", "url", src, "err", err, "remote", r.RemoteAddr)
		http.Error(w, "Invalid download URL", http.StatusBadRequest)
		return
	}

	d := c.Check(r.Context(), src)
	slog.Info("Download decision", "action", d.Action, "content_type", d.ContentType, "reason", d.Reason, "file", name)

	if d.Action == ActionOpen {
		http.Redirect(w, r, src, http.StatusFound)
		return
	}
	c.stream(w, r, src, name, d.ContentType)
}

func (c *Checker) stream(w http.ResponseWriter, r *http.Request, src, name, contentType string) {
	resp, err := c.do(r.Context(), http.MethodGet, src)
	if err != nil {
		slog.Warn("Download stream failed, opening instead", "url", src, "err", err)
		http.Redirect(w, r, src, http.StatusFound)
		return
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		http.Redirect(w, r, src, http.StatusFound)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		contentType = ct
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if resp.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("Download stream interrupted", "url", src, "err", err)
	}
}

// do sends one request and follows up to maxRedirects redirects, validating each target.
func (c *Checker) do(ctx context.Context, method, target string) (*http.Response, error) {
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, err
		}
		loc := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || loc == "" {
			return resp, nil
		}
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}

		if hop >= maxRedirects {
			return nil, fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		next, err := req.URL.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location: %w", err)
		}
		if _, err := c.ValidateTarget(ctx, next.String()); err != nil {
			return nil, fmt.Errorf("redirect to %s refused: %w", next.Redacted(), err)
		}
		slog.Debug("Following redirect", "from", target, "to", next.String())
		target = next.String()
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"' || r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}
