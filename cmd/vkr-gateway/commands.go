package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imbecility/vkr-gateway/pkg/api"
	"github.com/imbecility/vkr-gateway/pkg/config"
	"github.com/imbecility/vkr-gateway/pkg/gateway"
	"github.com/imbecility/vkr-gateway/pkg/view"
)

const cliKey = "cli"

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web page and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(serveGatewayConfig(a.cfg))
			if err != nil {
				return err
			}
			srv, err := api.NewServer(a.cfg.Port, gw, a.cfg.ProxyTarget)
			if err != nil {
				return err
			}
			if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server crashed", "err", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntP(config.KeyPort, "p", 8080, "Port for the web server")
	cobra.CheckErr(a.v.BindPFlag(config.KeyPort, cmd.Flags().Lookup(config.KeyPort)))
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "query <url>",
		Short: "Resolve one video URL and print the available formats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(a.cfg.Gateway)
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), gw, args[0], save, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "Download the format with this id into the output directory")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Read URLs from stdin, one per line; bursts collapse to the last line",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway(a.cfg.Gateway)
			if err != nil {
				return err
			}
			return watch(cmd.Context(), gw, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// serveGatewayConfig points relative endpoints at this server when no public
// base URL is configured, so /api/proxy stays first in the chain.
func serveGatewayConfig(cfg *config.Config) gateway.Config {
	gc := cfg.Gateway
	if gc.BaseURL == "" {
		gc.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	return gc
}

// runQuery prints the result for rawURL and optionally saves one format.
func runQuery(ctx context.Context, gw *gateway.Gateway, rawURL, save string, out io.Writer) error {
	res, err := resolve(ctx, gw, rawURL)
	if res != nil {
		if werr := res.WriteText(out); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if save == "" {
		return nil
	}

	for _, b := range res.Buttons {
		if b.FormatID != save {
			continue
		}
		path, err := gw.Downloader.Save(ctx, b.MediaURL, b.Filename)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		slog.Info("Success", "title", res.Title.String(), "path", path)
		return nil
	}
	return fmt.Errorf("format %q not offered", save)
}

func resolve(ctx context.Context, gw *gateway.Gateway, rawURL string) (*view.Result, error) {
	outcome, err := gw.Submitter.Submit(ctx, cliKey, rawURL)
	if err != nil {
		var qerr *gateway.QueryError
		if errors.As(err, &qerr) {
			return nil, fmt.Errorf("%s\n%s", qerr.UserMessage(), qerr.Detail())
		}
		return nil, err
	}
	return view.Render(outcome.Envelope, strings.TrimSpace(rawURL), view.Options{})
}

// watch feeds stdin lines through the debouncer so only the last URL of a burst is queried.
func watch(ctx context.Context, gw *gateway.Gateway, in io.Reader, out io.Writer) error {
	d := gateway.NewDebouncer(gateway.DefaultDebounce)
	defer d.Stop()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d.Trigger(func() {
			if err := runQuery(ctx, gw, line, "", out); err != nil && !isCanceled(err) {
				fmt.Fprintln(out, err)
			}
		})
	}
	d.Flush()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return ctx.Err()
}
