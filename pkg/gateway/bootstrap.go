package gateway

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/imbecility/vkr-gateway/pkg/client"
	"github.com/imbecility/vkr-gateway/pkg/downloader"
	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/logger"
	"github.com/imbecility/vkr-gateway/pkg/trigger"
)

const (
	DefaultRetries        = 2
	DefaultAttemptTimeout = 20 * time.Second
	DefaultEndpointDelay  = 1 * time.Second
	DefaultBaseDelay      = 3 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Config represents the configuration for gateway initialization.
type Config struct {
	// OutputDir is the folder for saved files (defaults to ./downloads).
	OutputDir string
	// BaseURL is the public address of this service, used for relative endpoints.
	// Relative endpoints are skipped when it is empty.
	BaseURL string
	// Endpoints is the fallback chain (defaults to endpoints.Defaults).
	Endpoints []endpoints.Template
	// Retries is the number of extra full rounds (defaults to 2). Negative means no retries.
	Retries        int
	AttemptTimeout time.Duration
	EndpointDelay  time.Duration
	BaseDelay      time.Duration
	MaxBackoff     time.Duration
	// Debug enables verbose logging.
	Debug bool
	// ShowProgress enables the progress bar in the console (for CLI usage).
	ShowProgress bool
	// AllowPrivate lets the download trigger reach private network hosts.
	AllowPrivate bool
}

// Gateway bundles everything the commands and the HTTP server need.
type Gateway struct {
	Service    *Service
	Submitter  *Submitter
	Checker    *trigger.Checker
	Downloader *downloader.Downloader
	Client     endpoints.HTTPClient
}

// New creates a ready-to-use Gateway with all necessary dependencies.
func New(cfg Config) (*Gateway, error) {
	logger.SetupGlobal(cfg.Debug, false)

	if cfg.OutputDir == "" {
		cfg.OutputDir = "./downloads"
	}
	absOutDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid output dir: %w", err)
	}

	httpClient, err := client.NewHttpClient()
	if err != nil {
		return nil, fmt.Errorf("failed to init http client: %w", err)
	}

	gw, err := Assemble(cfg, httpClient, absOutDir)
	if err != nil {
		return nil, err
	}

	// The trigger walks redirects itself so each hop is checked for private hosts.
	checkClient, err := client.NewHttpClient(client.WithoutRedirects())
	if err != nil {
		return nil, fmt.Errorf("failed to init check client: %w", err)
	}
	gw.Checker.Client = checkClient
	return gw, nil
}

// Assemble wires the gateway around an existing HTTP client.
func Assemble(cfg Config, httpClient endpoints.HTTPClient, outDir string) (*Gateway, error) {
	eps := cfg.Endpoints
	if len(eps) == 0 {
		eps = endpoints.Defaults
	}
	eps = usableEndpoints(eps, cfg.BaseURL)
	if len(eps) == 0 {
		return nil, fmt.Errorf("no usable endpoints (base url %q)", cfg.BaseURL)
	}

	svc := NewService(httpClient, eps, cfg.BaseURL)
	switch {
	case cfg.Retries < 0:
		svc.Retries = 0
	case cfg.Retries > 0:
		svc.Retries = cfg.Retries
	}
	if cfg.AttemptTimeout > 0 {
		svc.AttemptTimeout = cfg.AttemptTimeout
	}
	if cfg.EndpointDelay > 0 {
		svc.EndpointDelay = cfg.EndpointDelay
	}
	if cfg.BaseDelay > 0 {
		svc.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxBackoff > 0 {
		svc.MaxBackoff = cfg.MaxBackoff
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	guard := NewSubmitGuard()
	guard.OnRelease = func(key string) {
		slog.Debug("Submit control re-enabled", "client", key)
	}

	return &Gateway{
		Service:   svc,
		Submitter: &Submitter{Service: svc, Guard: guard},
		Checker:   &trigger.Checker{Client: httpClient, AllowPrivate: cfg.AllowPrivate},
		Downloader: &downloader.Downloader{
			Client:       httpClient,
			OutputDir:    outDir,
			ShowProgress: cfg.ShowProgress,
		},
		Client: httpClient,
	}, nil
}

func usableEndpoints(eps []endpoints.Template, baseURL string) []endpoints.Template {
	out := make([]endpoints.Template, 0, len(eps))
	for _, ep := range eps {
		if ep.IsRelative() && baseURL == "" {
			slog.Debug("Skipping relative endpoint without base url", "endpoint", ep.Name)
			continue
		}
		out = append(out, ep)
	}
	return out
}
