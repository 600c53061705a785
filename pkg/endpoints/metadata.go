package endpoints

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
)

// OEmbedBase and WatchBase are variables so tests can point them at a local server.
var (
	OEmbedBase = "https://www.youtube.com/oembed"
	WatchBase  = "https://www.youtube.com/watch"
)

var titleExpr = regexp.MustCompile(`<title>(.*?)(?: - YouTube)?</title>`)

// GetVideoTitle tries the oEmbed JSON first, then looks for <title> in the watch page.
func GetVideoTitle(ctx context.Context, client HTTPClient, videoID string) (string, error) {
	title, err := fetchOembedTitle(ctx, client, videoID)
	if err == nil && title != "" {
		return title, nil
	}
	slog.Debug("oEmbed title failed, falling back to scraping", "err", err)
	return fetchScrapedTitle(ctx, client, videoID)
}

func watchURL(videoID string) string {
	return WatchBase + "?v=" + url.QueryEscape(videoID)
}

func fetchOembedTitle(ctx context.Context, client HTTPClient, videoID string) (string, error) {
	q := url.Values{}
	q.Set("url", watchURL(videoID))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, OEmbedBase+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		bcerr := Body.Close()
		if bcerr != nil {
			slog.Warn("failed to close response body", "err", bcerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var data struct {
		Title string `json:"title"`
	}
	if jderr := json.NewDecoder(resp.Body).Decode(&data); jderr != nil {
		return "", jderr
	}
	return data.Title, nil
}

// fetchScrapedTitle reads at most 1MB of the watch page.
func fetchScrapedTitle(ctx context.Context, client HTTPClient, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL(videoID), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		bcerr := Body.Close()
		if bcerr != nil {
			slog.Warn("failed to close response body", "err", bcerr)
		}
	}(resp.Body)

	const maxBytes = 1024 * 1024
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxBytes))
	scanner.Buffer(make([]byte, 64*1024), maxBytes)

	for scanner.Scan() {
		if m := titleExpr.FindStringSubmatch(scanner.Text()); len(m) >= 2 {
			return html.UnescapeString(m[1]), nil
		}
	}
	return "", fmt.Errorf("title not found in first %d bytes", maxBytes)
}
