package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/pipeline"
)

// Pipeline is the session API the HTTP layer drives. *core.Processor
// implements it.
type Pipeline interface {
	CreateSession(ctx context.Context, mode constants.Mode) (pipeline.Snapshot, error)
	Snapshot(ctx context.Context, id string) (pipeline.Snapshot, error)
	DeleteSession(ctx context.Context, id string) error
	Capture(ctx context.Context, id string, img entity.Image) (pipeline.Snapshot, error)
	StartExtraction(ctx context.Context, id string) (pipeline.Snapshot, error)
	EditText(ctx context.Context, id, text string) (pipeline.Snapshot, error)
	ChangeMode(ctx context.Context, id string, mode constants.Mode) (pipeline.Snapshot, error)
	ClearError(ctx context.Context, id string) (pipeline.Snapshot, error)
	ReportError(ctx context.Context, id, message string) (pipeline.Snapshot, error)
	StartAnalysis(ctx context.Context, id string) (pipeline.Snapshot, error)
	Reset(ctx context.Context, id string) (pipeline.Snapshot, error)
}

type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// NewRouter wires the JSON API and the single-page client.
func NewRouter(cfg Config, p Pipeline, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", serveIndex)

	h := NewSessionHandler(p, cfg.MaxUploadBytes, logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/modes", listModes)
		r.Post("/sessions", h.Create)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(sessionID)
			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Post("/image", h.Capture)
			r.Post("/extract", h.Extract)
			r.Put("/text", h.EditText)
			r.Put("/mode", h.ChangeMode)
			r.Post("/analyze", h.Analyze)
			r.Post("/error", h.ReportError)
			r.Delete("/error", h.ClearError)
			r.Post("/reset", h.Reset)
			r.Get("/report", h.Report)
		})
	})
	return r
}

// NewHTTPServer builds the listener-side server around handler.
func NewHTTPServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

type modeDTO struct {
	ID          constants.Mode `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
}

func listModes(w http.ResponseWriter, _ *http.Request) {
	modes := constants.AllModes()
	out := make([]modeDTO, 0, len(modes))
	for _, m := range modes {
		out = append(out, modeDTO{ID: m, Title: m.Title(), Description: m.Description()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": out})
}
