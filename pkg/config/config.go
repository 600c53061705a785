// Package config reads settings from flags, VKR_* environment variables and an
// optional config file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/gateway"
)

const (
	KeyDebug         = "debug"
	KeyPort          = "port"
	KeyBaseURL       = "base-url"
	KeyTimeout       = "timeout"
	KeyRetries       = "retries"
	KeyEndpointDelay = "endpoint-delay"
	KeyBaseDelay     = "base-delay"
	KeyMaxBackoff    = "max-backoff"
	KeyEndpoints     = "endpoints"
	KeyProxyTarget   = "proxy-target"
	KeyOutputDir     = "out"
	KeyProgress      = "progress"
	KeyAllowPrivate  = "allow-private"

	EnvPrefix = "VKR"
)

// Per-attempt timeout bounds.
const (
	MinAttemptTimeout = 15 * time.Second
	MaxAttemptTimeout = 20 * time.Second
)

type Config struct {
	Gateway     gateway.Config
	Port        int
	ProxyTarget endpoints.Template
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyTimeout, gateway.DefaultAttemptTimeout)
	v.SetDefault(KeyRetries, gateway.DefaultRetries)
	v.SetDefault(KeyEndpointDelay, gateway.DefaultEndpointDelay)
	v.SetDefault(KeyBaseDelay, gateway.DefaultBaseDelay)
	v.SetDefault(KeyMaxBackoff, gateway.DefaultMaxBackoff)
	v.SetDefault(KeyEndpoints, []string{})
	v.SetDefault(KeyProxyTarget, endpoints.DefaultProxyTarget)
	v.SetDefault(KeyOutputDir, "./downloads")
	v.SetDefault(KeyProgress, false)
	v.SetDefault(KeyAllowPrivate, false)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Load validates the values held by v.
func Load(v *viper.Viper) (*Config, error) {
	retries := v.GetInt(KeyRetries)
	if retries < 0 {
		return nil, fmt.Errorf("%s must be >= 0, got %d", KeyRetries, retries)
	}

	timeout := v.GetDuration(KeyTimeout)
	if timeout < MinAttemptTimeout || timeout > MaxAttemptTimeout {
		return nil, fmt.Errorf("%s must be between %s and %s, got %s", KeyTimeout, MinAttemptTimeout, MaxAttemptTimeout, timeout)
	}

	port := v.GetInt(KeyPort)
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid %s %d", KeyPort, port)
	}

	var eps []endpoints.Template
	if raw := v.GetStringSlice(KeyEndpoints); len(raw) > 0 {
		parsed, err := endpoints.ParseTemplates(raw)
		if err != nil {
			return nil, err
		}
		eps = parsed
	}

	proxy := v.GetString(KeyProxyTarget)
	if !strings.Contains(proxy, endpoints.Placeholder) {
		return nil, fmt.Errorf("%s needs the %s placeholder", KeyProxyTarget, endpoints.Placeholder)
	}
	proxyTarget := endpoints.Template{Name: "proxy-target", Pattern: proxy}
	if proxyTarget.IsRelative() {
		return nil, errors.New("proxy target must be an absolute url")
	}

	// Retries 0 means "no retries" here; gateway.Config uses a negative value for that.
	gwRetries := retries
	if retries == 0 {
		gwRetries = -1
	}

	return &Config{
		Gateway: gateway.Config{
			OutputDir:      v.GetString(KeyOutputDir),
			BaseURL:        strings.TrimRight(v.GetString(KeyBaseURL), "/"),
			Endpoints:      eps,
			Retries:        gwRetries,
			AttemptTimeout: timeout,
			EndpointDelay:  nonNegative(v.GetDuration(KeyEndpointDelay)),
			BaseDelay:      nonNegative(v.GetDuration(KeyBaseDelay)),
			MaxBackoff:     nonNegative(v.GetDuration(KeyMaxBackoff)),
			Debug:          v.GetBool(KeyDebug),
			ShowProgress:   v.GetBool(KeyProgress),
			AllowPrivate:   v.GetBool(KeyAllowPrivate),
		},
		Port:        port,
		ProxyTarget: proxyTarget,
	}, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
