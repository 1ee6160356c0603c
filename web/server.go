// Package web serves the browser front end and its JSON API.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/promptdemo/completion"
	"github.com/tmc/promptdemo/continuation"
	"github.com/tmc/promptdemo/inference"
	"github.com/tmc/promptdemo/options"
	"go.uber.org/zap"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Messages shown by the UI for rejected submissions.
const (
	msgSelectModel = "Please select a model."
	msgEnterText   = "Please enter some text."
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

// Completer runs one continuation for a submission.
// *completion.Service implements it.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (continuation.Result, error)
}

// Inference lists models and styles and generates images.
// *inference.Client implements it.
type Inference interface {
	ListModels(ctx context.Context) ([]inference.Model, error)
	ListStyles(ctx context.Context) ([]string, error)
	GenerateImage(ctx context.Context, req inference.ImageRequest) (*inference.Image, error)
}

// Server is the web UI server.
type Server struct {
	completer Completer
	inference Inference
	cfg       *options.Config
	logger    *zap.SugaredLogger

	index   *template.Template
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithInference sets the inference client used for model and style listing
// and image generation. Without one the configured model and styles are
// served and image generation is unavailable.
func WithInference(inf Inference) Option {
	return func(s *Server) {
		s.inference = inf
	}
}

// New returns a Server that completes prompts with completer.
func New(completer Completer, cfg *options.Config, opts ...Option) (*Server, error) {
	if completer == nil {
		return nil, errors.New("completer cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	s := &Server{completer: completer, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}

	tmpl, err := template.ParseFS(assets, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	s.index = tmpl

	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static", NewETagFileServer(http.FS(static))))
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("POST /api/complete", s.handleComplete)
	mux.HandleFunc("POST /api/image", s.handleImage)
	s.handler = logRequests(s.logger.Named("http"), mux)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Infow("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type indexData struct {
	Model  string
	Styles []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{Model: s.cfg.Model, Styles: s.cfg.Styles}
	if err := s.index.Execute(w, data); err != nil {
		s.logger.Errorw("failed to render index", "error", err)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.inference == nil {
		s.writeJSON(w, http.StatusOK, []inference.Model{{ID: s.cfg.Model}})
		return
	}
	models, err := s.inference.ListModels(r.Context())
	if err != nil {
		s.logger.Warnw("failed to list models", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	if s.inference == nil {
		s.writeJSON(w, http.StatusOK, s.cfg.Styles)
		return
	}
	styles, err := s.inference.ListStyles(r.Context())
	if err != nil {
		s.logger.Warnw("failed to list styles", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, styles)
}

type completeResponse struct {
	Text         string `json:"text"`
	Calls        int    `json:"calls"`
	FinishReason string `json:"finishReason"`
	Truncated    bool   `json:"truncated"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completion.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate(req.Model, req.Prompt); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := s.completer.Complete(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, continuation.ErrPrecondition) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	resp := completeResponse{
		Text:         res.Text,
		Calls:        res.Calls,
		FinishReason: string(res.FinishReason),
		Truncated:    res.Truncated(),
	}
	if res.Failed() {
		resp.Error = res.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Style  string `json:"style"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.inference == nil {
		s.writeError(w, http.StatusNotImplemented, "image generation is not configured")
		return
	}
	var req imageRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, msgEnterText)
		return
	}
	if req.Model == "" {
		req.Model = s.cfg.ImageModel
	}

	img, err := s.inference.GenerateImage(r.Context(), inference.ImageRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		Style:  req.Style,
		Size:   s.cfg.ImageSize,
	})
	if err != nil {
		s.logger.Warnw("image generation failed", "model", req.Model, "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, img)
}

// validate returns the UI message for an unusable submission, or "".
func validate(model, prompt string) string {
	if strings.TrimSpace(model) == "" {
		return msgSelectModel
	}
	if strings.TrimSpace(prompt) == "" {
		return msgEnterText
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("failed to write response", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
