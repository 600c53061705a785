package endpoints

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Placeholder is replaced by the query-escaped video URL.
const Placeholder = "{url}"

// Template is one entry of the endpoint fallback chain.
type Template struct {
	Name    string
	Pattern string
}

// Defaults is the fallback chain in priority order.
var Defaults = []Template{
	{Name: "local-proxy", Pattern: "/api/proxy?url={url}"},
	{Name: "vkrdownloader", Pattern: "https://vkrdownloader.xyz/server?api_key=vkrdownloader&vkr={url}"},
	{Name: "socialdownloader", Pattern: "https://api.socialdownloader.com/api/facebook?url={url}"},
	{Name: "cors-anywhere", Pattern: "https://cors-anywhere.herokuapp.com/https://vkrdownloader.xyz/server?api_key=vkrdownloader&vkr={url}"},
}

// DefaultProxyTarget is where the local /api/proxy route forwards to.
const DefaultProxyTarget = "https://vkrdownloader.xyz/server?api_key=vkrdownloader&vkr={url}"

var ErrNoBaseURL = errors.New("relative endpoint needs a base url")

func (t Template) IsRelative() bool {
	return strings.HasPrefix(t.Pattern, "/")
}

// Build expands the template for target. Relative patterns are resolved against base.
func (t Template) Build(base, target string) (string, error) {
	raw := strings.ReplaceAll(t.Pattern, Placeholder, url.QueryEscape(target))
	if !t.IsRelative() {
		return raw, nil
	}
	if base == "" {
		return "", ErrNoBaseURL
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", t.Name, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// ParseTemplates reads "name=pattern" entries. A bare pattern is named after its host.
func ParseTemplates(entries []string) ([]Template, error) {
	out := make([]Template, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, pattern, found := strings.Cut(e, "=")
		if !found || strings.Contains(name, "/") || strings.Contains(name, "?") {
			name, pattern = "", e
		}
		if !strings.Contains(pattern, Placeholder) {
			return nil, fmt.Errorf("endpoint %q has no %s placeholder", e, Placeholder)
		}
		if name == "" {
			name = pattern
			if u, err := url.Parse(strings.ReplaceAll(pattern, Placeholder, "")); err == nil && u.Host != "" {
				name = u.Host
			}
		}
		out = append(out, Template{Name: name, Pattern: pattern})
	}
	if len(out) == 0 {
		return nil, errors.New("no endpoints configured")
	}
	return out, nil
}
