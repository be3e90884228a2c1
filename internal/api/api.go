package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fundboard/pkg/fundboard"
)

const serviceName = "fundboard"

// Options configures NewRouter.
type Options struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
	Logger      *slog.Logger
	Version     string
}

// NewRouter builds the HTTP API router.
func NewRouter(core *fundboard.Core, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = core.Logger()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handler{
		core:    core,
		tokens:  newTokenIssuer(opts.JWTSecret, opts.TokenExpiry),
		logger:  logger,
		version: opts.Version,
	}

	r.Get("/api/health", h.health)
	r.Post("/api/auth/register", h.register)
	r.Post("/api/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/api/auth/me", h.me)

		// Settings
		r.Get("/api/settings", h.getSettings)
		r.Put("/api/settings", h.updateSettings)

		// Funds
		r.Get("/api/funds", h.listFunds)
		r.Post("/api/funds", h.addFund)
		r.Get("/api/funds/search", h.searchFunds)
		r.Get("/api/funds/{id}", h.getFund)
		r.Put("/api/funds/{id}", h.updateFund)
		r.Delete("/api/funds/{id}", h.deleteFund)
		r.Get("/api/funds/{id}/chart.png", h.fundChart)
		r.Post("/api/funds/{id}/analyze", h.analyzeFund)

		// AI
		r.Post("/api/ai/test-connection", h.testConnection)
		r.Post("/api/ai/chat", h.chat)
		r.Get("/api/ai/chat/history", h.getChatHistory)
		r.Delete("/api/ai/chat/history", h.clearChatHistory)
		r.Post("/api/ai/market-sentiment", h.marketSentiment)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

type handler struct {
	core    *fundboard.Core
	tokens  *tokenIssuer
	logger  *slog.Logger
	version string
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a plain error body and records the message for the access log.
func writeError(w http.ResponseWriter, status int, message string) {
	if recorder, ok := w.(interface{ SetErrorMessage(string) }); ok {
		recorder.SetErrorMessage(message)
	}
	writeJSON(w, status, ErrorResponse{Code: status, Message: message, Error: message})
}
