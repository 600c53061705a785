package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imbecility/vkr-gateway/pkg/config"
	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/gateway"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "vkr-gateway",
		Short:         "Resolve video URLs to direct download links through a chain of public APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(a.v, a.cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (yaml, json or toml)")
	if err := a.initFlags(root); err != nil {
		slog.Error("Failed to bind flags", "err", err)
		os.Exit(1)
	}

	root.AddCommand(a.serveCmd(), a.queryCmd(), a.watchCmd())
	return root
}

// initFlags registers the shared settings and binds them to viper.
func (a *app) initFlags(root *cobra.Command) error {
	f := root.PersistentFlags()
	f.Bool(config.KeyDebug, false, "Enable debug logging")
	f.String(config.KeyBaseURL, "", "Public address of this service, used for relative endpoints")
	f.Duration(config.KeyTimeout, gateway.DefaultAttemptTimeout, "Timeout per endpoint attempt")
	f.Int(config.KeyRetries, gateway.DefaultRetries, "Extra rounds over the whole endpoint chain")
	f.Duration(config.KeyEndpointDelay, gateway.DefaultEndpointDelay, "Pause before trying the next endpoint")
	f.Duration(config.KeyBaseDelay, gateway.DefaultBaseDelay, "Backoff before the first retry round (doubles each round)")
	f.Duration(config.KeyMaxBackoff, gateway.DefaultMaxBackoff, "Upper bound of the retry backoff")
	f.StringSlice(config.KeyEndpoints, nil, "Endpoint chain as name=pattern, pattern must contain {url}")
	f.String(config.KeyProxyTarget, endpoints.DefaultProxyTarget, "Upstream used by /api/proxy")
	f.StringP(config.KeyOutputDir, "o", "./downloads", "Output directory for saved files")
	f.Bool(config.KeyProgress, false, "Show console progress bar")
	f.Bool(config.KeyAllowPrivate, false, "Let /download reach private network hosts")

	for _, key := range []string{
		config.KeyDebug, config.KeyBaseURL, config.KeyTimeout, config.KeyRetries,
		config.KeyEndpointDelay, config.KeyBaseDelay, config.KeyMaxBackoff, config.KeyEndpoints,
		config.KeyProxyTarget, config.KeyOutputDir, config.KeyProgress, config.KeyAllowPrivate,
	} {
		if err := a.v.BindPFlag(key, f.Lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) gateway(cfg gateway.Config) (*gateway.Gateway, error) {
	gw, err := gateway.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	return gw, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
