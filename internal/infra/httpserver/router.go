package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appsentiment "github.com/Djamsy/veille-uptade-sub000/internal/application/sentiment"
	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
	"github.com/Djamsy/veille-uptade-sub000/internal/middleware"
)

// resultUnavailable is what the dashboard expects on a missing result.
const resultUnavailable = "Résultat non disponible"

type Router struct {
	svc        *appsentiment.Service
	maxTextLen int
}

// Options tunes the router beyond the service itself.
type Options struct {
	MaxTextLength  int
	AllowedOrigins []string
	Checkers       map[string]middleware.HealthChecker
	RateLimit      func(http.Handler) http.Handler
	APIKeys        []string
}

func NewRouter(svc *appsentiment.Service, opts Options) http.Handler {
	r := &Router{svc: svc, maxTextLen: opts.MaxTextLength}
	mux := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimit != nil {
		mux.Use(opts.RateLimit)
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Handle("/metrics", middleware.MetricsHandler())

	mux.Route("/sentiment", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleAnalyzeSync))
		rt.Post("/async", r.wrap(r.handleAnalyzeAsync))
		rt.Get("/status/{taskID}", r.wrap(r.handleStatus))
		rt.Get("/result/{taskID}", r.wrap(r.handleResult))
		rt.Get("/analyses", r.wrap(r.handleAnalyses))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrQuotaExceeded):
				http.Error(w, "analysis quota exceeded", http.StatusTooManyRequests)
			case errors.Is(err, domain.ErrCacheUnavailable), errors.Is(err, domain.ErrQueueUnavailable):
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (r *Router) decodeText(req *http.Request) (string, error) {
	var body analyzeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := middleware.ValidateText(body.Text, r.maxTextLen); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return body.Text, nil
}

// POST /sentiment
// Body: {"text": "..."} — blocks on the provider and returns the result.
func (r *Router) handleAnalyzeSync(w http.ResponseWriter, req *http.Request) error {
	text, err := r.decodeText(req)
	if err != nil {
		return err
	}

	res, err := r.svc.Analyze(req.Context(), text, false)
	if err != nil {
		return err
	}
	if res.Cached {
		middleware.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		middleware.CacheLookups.WithLabelValues("miss").Inc()
	}

	return writeJSON(w, map[string]any{
		"task_id": res.TaskID,
		"status":  res.Status,
		"cached":  res.Cached,
		"result":  res.Result,
	})
}

// POST /sentiment/async
// Body: {"text": "..."} — returns a task reference immediately.
// result is present only when status is "cached".
func (r *Router) handleAnalyzeAsync(w http.ResponseWriter, req *http.Request) error {
	text, err := r.decodeText(req)
	if err != nil {
		return err
	}

	res, err := r.svc.Analyze(req.Context(), text, true)
	if err != nil {
		return err
	}

	resp := map[string]any{
		"task_id": res.TaskID,
		"status":  res.Status,
	}
	if res.Cached {
		middleware.CacheLookups.WithLabelValues("hit").Inc()
		resp["result"] = res.Result
	} else {
		middleware.CacheLookups.WithLabelValues("miss").Inc()
	}
	return writeJSON(w, resp)
}

// GET /sentiment/status/{taskID} — taskID is a job ID or a fingerprint
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	taskID := chi.URLParam(req, "taskID")
	if err := middleware.ValidateTaskID(taskID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	st, err := r.svc.Status(req.Context(), taskID)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"status": st})
}

// GET /sentiment/result/{taskID}
func (r *Router) handleResult(w http.ResponseWriter, req *http.Request) error {
	taskID := chi.URLParam(req, "taskID")
	if err := middleware.ValidateTaskID(taskID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	result, err := r.svc.Result(req.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, resultUnavailable, http.StatusNotFound)
			return nil
		}
		return err
	}
	return writeJSON(w, map[string]any{"result": result})
}

// GET /sentiment/analyses?page=&page_size=
func (r *Router) handleAnalyses(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.Recent(req.Context(), page, middleware.ValidatePageSize(size))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /sentiment/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.svc.Summary(req.Context(), middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, summary)
}
