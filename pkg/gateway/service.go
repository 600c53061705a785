package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/models"
	"github.com/imbecility/vkr-gateway/pkg/utils"
)

const (
	MsgEmptyInput = "Please enter a valid video URL."
	MsgAllFailed  = "Unable to fetch the download link after trying multiple services. " +
		"This might be due to CORS restrictions or API limitations. Please try again later or contact support."
)

var ErrEmptyInput = errors.New(MsgEmptyInput)

// QueryError is returned once every endpoint failed in every round.
type QueryError struct {
	ID       string
	Attempts int
	Last     *endpoints.AttemptError
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("all endpoints failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *QueryError) Unwrap() error { return e.Last }

// UserMessage is the text shown in the error banner.
func (e *QueryError) UserMessage() string { return MsgAllFailed }

// Detail is the categorized reason of the last attempt.
func (e *QueryError) Detail() string {
	if e.Last == nil {
		return ""
	}
	return e.Last.Detail()
}

// Outcome is a successful query.
type Outcome struct {
	ID       string
	Envelope *models.Envelope
	Endpoint string
	Attempts int
}

type Service struct {
	Client    endpoints.HTTPClient
	Endpoints []endpoints.Template
	// BaseURL resolves relative endpoint templates.
	BaseURL        string
	Retries        int
	AttemptTimeout time.Duration
	EndpointDelay  time.Duration
	BaseDelay      time.Duration
	MaxBackoff     time.Duration
	EnrichTitles   bool

	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(client endpoints.HTTPClient, eps []endpoints.Template, baseURL string) *Service {
	return &Service{
		Client:         client,
		Endpoints:      eps,
		BaseURL:        baseURL,
		Retries:        DefaultRetries,
		AttemptTimeout: DefaultAttemptTimeout,
		EndpointDelay:  DefaultEndpointDelay,
		BaseDelay:      DefaultBaseDelay,
		MaxBackoff:     DefaultMaxBackoff,
		EnrichTitles:   true,
		sleep:          sleepCtx,
	}
}

// Backoff is the wait before full round number consumed+1.
func (s *Service) Backoff(consumed int) time.Duration {
	d := s.BaseDelay
	for i := 0; i < consumed; i++ {
		d *= 2
		if s.MaxBackoff > 0 && d >= s.MaxBackoff {
			return s.MaxBackoff
		}
	}
	if s.MaxBackoff > 0 && d > s.MaxBackoff {
		return s.MaxBackoff
	}
	return d
}

// Query walks the endpoint chain in order, round after round, until one endpoint
// answers or the retry budget is spent. At most len(Endpoints) * (Retries+1) attempts are made.
func (s *Service) Query(ctx context.Context, rawURL string) (*Outcome, error) {
	input := strings.TrimSpace(rawURL)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if len(s.Endpoints) == 0 {
		return nil, errors.New("no endpoints configured")
	}

	id := uuid.NewString()
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last *endpoints.AttemptError
	attempts := 0

	for consumed := 0; ; consumed++ {
		for i, ep := range s.Endpoints {
			if i > 0 {
				slog.Debug("Trying next API endpoint", "id", id, "endpoint", ep.Name)
				if err := sleep(ctx, s.EndpointDelay); err != nil {
					return nil, fmt.Errorf("query canceled: %w", err)
				}
			}

			attempts++
			env, err := s.attempt(ctx, ep, input)
			if err == nil {
				slog.Info("Link acquired", "id", id, "endpoint", ep.Name, "attempt", attempts)
				s.enrich(ctx, env)
				return &Outcome{ID: id, Envelope: env, Endpoint: ep.Name, Attempts: attempts}, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("query canceled: %w", ctx.Err())
			}

			slog.Warn("API endpoint failed", "id", id, "endpoint", ep.Name, "attempt", attempts, "err", err)
			if !errors.As(err, &last) {
				last = &endpoints.AttemptError{Endpoint: ep.Name, Err: err}
			}
		}

		if consumed >= s.Retries {
			break
		}

		delay := s.Backoff(consumed)
		slog.Info("All APIs failed, retrying",
			"id", id, "delay", delay, "attempts_left", s.Retries-consumed)
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("query canceled: %w", err)
		}
	}

	qerr := &QueryError{ID: id, Attempts: attempts, Last: last}
	slog.Error("All API endpoints failed", "id", id, "attempts", attempts, "detail", qerr.Detail())
	return nil, qerr
}

func (s *Service) attempt(ctx context.Context, ep endpoints.Template, input string) (*models.Envelope, error) {
	reqURL, err := ep.Build(s.BaseURL, input)
	if err != nil {
		return nil, &endpoints.AttemptError{Endpoint: ep.Name, Err: err}
	}
	return endpoints.Fetch(ctx, s.Client, ep.Name, reqURL, s.AttemptTimeout)
}

// enrich replaces an empty YouTube title with the oEmbed one.
func (s *Service) enrich(ctx context.Context, env *models.Envelope) {
	if !s.EnrichTitles || env == nil || env.Data == nil {
		return
	}
	if strings.TrimSpace(env.Data.Title.String()) != "" || !utils.IsYouTubeSource(env.Data.Source) {
		return
	}
	vidID := utils.ExtractVideoID(env.Data.Source)
	if vidID == "" {
		return
	}

	title, err := endpoints.GetVideoTitle(ctx, s.Client, vidID)
	if err != nil || title == "" {
		slog.Warn("Failed to fetch metadata", "vid", vidID, "err", err)
		return
	}
	slog.Info("Metadata fetched", "vid", vidID, "title", title)
	env.Data.Title = models.FlexString(title)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
