package utils

import (
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformUnknown  Platform = "unknown"
)

const youtubeIDLen = 11

var (
	facebookHosts  = []string{"www.facebook.com", "facebook.com", "m.facebook.com", "web.facebook.com"}
	facebookIDExpr = regexp.MustCompile(`/(?:videos?|reel)/(\d+)`)
)

func isYouTubeHost(host string) bool {
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// Detect reports the platform of the URL host without validating the ID.
func Detect(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be" || isYouTubeHost(host):
		return PlatformYouTube
	case slices.Contains(facebookHosts, host):
		return PlatformFacebook
	}
	return PlatformUnknown
}

// IsYouTubeSource is the loose check applied to the "source" field of API payloads.
func IsYouTubeSource(source string) bool {
	return strings.Contains(source, "youtube.com") || strings.Contains(source, "youtu.be")
}

// ExtractVideoID returns the YouTube or Facebook video ID of rawURL, or ""
// when the URL is malformed or has no recognizable ID.
func ExtractVideoID(rawURL string) string {
	if rawURL == "" {
		slog.Error("Invalid URL provided to ExtractVideoID", "url", rawURL)
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		slog.Warn("URL does not start with http:// or https://", "url", rawURL)
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		slog.Error("Error parsing URL", "url", rawURL, "err", err)
		return ""
	}
	host := strings.ToLower(u.Hostname())

	if host == "youtu.be" {
		id := strings.TrimPrefix(u.Path, "/")
		if len(id) == youtubeIDLen {
			return id
		}
		return ""
	}

	if isYouTubeHost(host) {
		if strings.HasPrefix(u.Path, "/shorts/") {
			return pathSegment(u.Path, 2)
		}
		id := u.Query().Get("v")
		if len(id) == youtubeIDLen {
			return id
		}
		return ""
	}

	if slices.Contains(facebookHosts, host) {
		if strings.HasPrefix(u.Path, "/reel/") {
			return pathSegment(u.Path, 2)
		}
		if m := facebookIDExpr.FindStringSubmatch(u.Path); len(m) == 2 {
			return m[1]
		}
	}

	slog.Warn("Unrecognized video URL format", "url", rawURL)
	return ""
}

// pathSegment mirrors splitting "/a/b/c" on "/": index 1 is "a", 2 is "b".
func pathSegment(p string, i int) string {
	parts := strings.Split(p, "/")
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
