package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/imbecility/vkr-gateway/pkg/models"
)

// maxBody caps how much of an endpoint answer is read.
const maxBody = 8 << 20

// AttemptError describes one failed GET against an endpoint.
// Status is 0 when no HTTP response was received.
type AttemptError struct {
	Endpoint   string
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *AttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.Status)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Detail is the human readable category of the failure.
func (e *AttemptError) Detail() string {
	transport := ""
	if e.Err != nil {
		transport = e.Err.Error()
	}
	return ErrorDetail(e.Status, e.StatusText, e.Body, transport)
}

// Fetch performs a single GET against requestURL and decodes the JSON answer.
// Non-2xx, transport errors, timeouts and non-JSON bodies all return *AttemptError.
func Fetch(ctx context.Context, client HTTPClient, name, requestURL string, timeout time.Duration) (*models.Envelope, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &AttemptError{Endpoint: name, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s: %w", timeout, err)
		}
		return nil, &AttemptError{Endpoint: name, Err: err}
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}
	}(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &AttemptError{Endpoint: name, Status: resp.StatusCode, StatusText: statusText(resp), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AttemptError{
			Endpoint:   name,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(body),
			Err:        fmt.Errorf("http status: %d", resp.StatusCode),
		}
	}

	var env models.Envelope
	if jerr := json.Unmarshal(body, &env); jerr != nil {
		return nil, &AttemptError{
			Endpoint:   name,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(body),
			Err:        fmt.Errorf("parsererror: %w", jerr),
		}
	}
	return &env, nil
}

func statusText(resp *http.Response) string {
	if t := http.StatusText(resp.StatusCode); t != "" {
		return t
	}
	return resp.Status
}
