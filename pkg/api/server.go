package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
	"github.com/imbecility/vkr-gateway/pkg/gateway"
	"github.com/imbecility/vkr-gateway/pkg/models"
	"github.com/imbecility/vkr-gateway/pkg/utils"
	"github.com/imbecility/vkr-gateway/pkg/view"
)

//go:embed templates/*.gohtml
var tplFS embed.FS

const (
	DownloadPath = "/download"
	proxyTimeout = 20 * time.Second
	maxProxyBody = 8 << 20
)

type Server struct {
	Port        int
	Gateway     *gateway.Gateway
	ProxyTarget endpoints.Template
	// Pages may be nil; the server then answers with plain text.
	Pages *template.Template
}

// NewServer parses the embedded templates.
func NewServer(port int, gw *gateway.Gateway, proxyTarget endpoints.Template) (*Server, error) {
	pages, err := template.ParseFS(tplFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Server{Port: port, Gateway: gw, ProxyTarget: proxyTarget, Pages: pages}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Post("/", s.handleSubmit)
	r.Get("/api/proxy", s.handleProxy)
	r.Get("/api/query", s.handleAPIQuery)
	r.Method(http.MethodGet, DownloadPath, s.Gateway.Checker)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting web server", "addr", fmt.Sprintf("http://localhost:%d", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("Shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "vkr-gateway",
		"endpoints": len(s.Gateway.Service.Endpoints),
	})
}

// handleIndex renders the empty page, or runs a submission for ?url=.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if input := r.URL.Query().Get("url"); input != "" {
		s.renderPage(w, s.submit(r, input))
		return
	}
	// A chain still running for this client keeps the control disabled on reload.
	page := &view.Page{SubmitDisabled: !s.Gateway.Submitter.Guard.Enabled(clientKey(r))}
	s.renderPage(w, page)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		page := &view.Page{}
		page.ShowError("Invalid form submission.")
		s.renderPage(w, page)
		return
	}
	s.renderPage(w, s.submit(r, r.PostFormValue("url")))
}

// submit runs one submission through the guard and fills the page model.
func (s *Server) submit(r *http.Request, input string) *view.Page {
	page := &view.Page{}
	page.Begin(strings.TrimSpace(input))
	defer page.Finish()

	slog.Debug("Submission", "platform", utils.Detect(input), "remote", r.RemoteAddr)
	out, err := s.Gateway.Submitter.Submit(r.Context(), clientKey(r), input)
	var qerr *gateway.QueryError
	switch {
	case err == nil:
		page.Apply(out.Envelope, view.Options{DownloadPath: DownloadPath})
	case errors.Is(err, gateway.ErrEmptyInput):
		page.ShowError(gateway.MsgEmptyInput)
	case errors.Is(err, gateway.ErrBusy):
		page.ShowError("A request is already in progress. Please wait for it to finish.")
	case errors.As(err, &qerr):
		page.ShowError(qerr.UserMessage())
		page.Detail = view.Sanitize(qerr.Detail())
	default:
		slog.Warn("Submission aborted", "err", err, "remote", r.RemoteAddr)
		page.ShowError(err.Error())
	}
	return page
}

type pageData struct {
	*view.Page
	DebounceMs int64
}

func (s *Server) renderPage(w http.ResponseWriter, page *view.Page) {
	if s.Pages != nil {
		var buf bytes.Buffer
		data := pageData{Page: page, DebounceMs: gateway.DefaultDebounce.Milliseconds()}
		err := s.Pages.ExecuteTemplate(&buf, "index", data)
		if err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if _, werr := buf.WriteTo(w); werr != nil {
				slog.Warn("Failed to write page", "err", werr)
			}
			return
		}
		slog.Error("Template execution failed", "error", err)
	}

	// No page to show the banner in: plain text, like a blocking alert.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	msg := page.Error.String()
	if msg == "" {
		msg = "Page unavailable."
	}
	if _, err := io.WriteString(w, msg+"\n"); err != nil {
		slog.Warn("Failed to write fallback", "err", err)
	}
}

// handleAPIQuery is the JSON flavour of a submission.
func (s *Server) handleAPIQuery(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("url")
	out, err := s.Gateway.Submitter.Submit(r.Context(), clientKey(r), input)

	var qerr *gateway.QueryError
	switch {
	case errors.Is(err, gateway.ErrEmptyInput):
		s.respondJSON(w, http.StatusBadRequest, models.APIResponse{Error: gateway.MsgEmptyInput})
		return
	case errors.Is(err, gateway.ErrBusy):
		s.respondJSON(w, http.StatusTooManyRequests, models.APIResponse{Error: err.Error()})
		return
	case errors.As(err, &qerr):
		s.respondJSON(w, http.StatusBadGateway, models.APIResponse{
			Error: qerr.UserMessage(), Detail: qerr.Detail(), Attempts: qerr.Attempts,
		})
		return
	case err != nil:
		s.respondJSON(w, http.StatusServiceUnavailable, models.APIResponse{Error: err.Error()})
		return
	}

	if out.Envelope.Data == nil {
		s.respondJSON(w, http.StatusBadGateway, models.APIResponse{Error: view.MsgMissingEnvelope, Endpoint: out.Endpoint})
		return
	}
	s.respondJSON(w, http.StatusOK, models.APIResponse{
		Success:  true,
		Endpoint: out.Endpoint,
		Attempts: out.Attempts,
		VideoID:  utils.ExtractVideoID(strings.TrimSpace(input)),
		Platform: string(utils.Detect(input)),
		Data:     out.Envelope.Data,
	})
}

// handleProxy is the relative endpoint of the chain: one pass-through GET to the proxy target.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	upstream, err := s.ProxyTarget.Build("", target)
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "proxy misconfigured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream, nil)
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Gateway.Client.Do(req)
	if err != nil {
		slog.Warn("Proxy upstream failed", "err", err)
		s.respondJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unreachable"})
		return
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}
	}(resp.Body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxProxyBody)); err != nil {
		slog.Warn("Proxy copy failed", "err", err)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jerr := json.NewEncoder(w).Encode(data)
	if jerr != nil {
		slog.Error("JSON encoding failed", "error", jerr)
	}
}

// clientKey identifies the submit control of one client.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
