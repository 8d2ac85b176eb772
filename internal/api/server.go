// Package api serves the booking calendar over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"skovkrogen/internal/auth"
	"skovkrogen/internal/booking"
	"skovkrogen/internal/selection"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Options configures the HTTP layer.
type Options struct {
	AllowedOrigins []string
	// RateLimitRPS is the per-client request rate. 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// ResetRedirect is where password reset mails send the user.
	ResetRedirect string
}

// HTTPServer exposes the booking workflow as a JSON API.
type HTTPServer struct {
	svc        *booking.Service
	selections selection.Store
	machine    *selection.Machine
	auth       auth.Authenticator
	limiter    *clientLimiter
	opts       Options
	logger     zerolog.Logger
	server     *http.Server
}

func NewHTTPServer(addr string, svc *booking.Service, selections selection.Store, authn auth.Authenticator, opts Options, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		svc:        svc,
		selections: selections,
		machine:    selection.NewMachine(),
		auth:       authn,
		opts:       opts,
		logger:     logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(s.rateLimit)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/reset", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireViewer)

			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/password", s.handleUpdatePassword)
			r.Get("/me", s.handleMe)
			r.Get("/roster", s.handleRoster)
			r.Get("/checklist/items", s.handleChecklistItems)
			r.Get("/calendar", s.handleCalendar)
			r.Get("/conflicts", s.handleConflicts)

			r.Route("/selection", func(r chi.Router) {
				r.Get("/", s.handleGetSelection)
				r.Post("/click", s.handleClick)
				r.Delete("/", s.handleClearSelection)
			})

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", s.handleListBookings)
				r.Post("/", s.handleCreateBooking)
				r.Get("/export.xlsx", s.handleExportWorkbook)
				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/", s.handleEditName)
					r.Delete("/", s.handleDeleteBooking)
					r.Post("/checklist/{item}", s.handleToggleChecklist)
					r.Get("/calendar.ics", s.handleBookingICS)
					r.Get("/gcal", s.handleGoogleCalendar)
				})
			})
		})
	})
	return r
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// statusForKind maps workflow error kinds to HTTP statuses.
func statusForKind(k booking.Kind) int {
	switch k {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindConflict:
		return http.StatusConflict
	case booking.KindPermission:
		return http.StatusForbidden
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindConfirmationRequired:
		return http.StatusPreconditionRequired
	case booking.KindUnauthenticated:
		return http.StatusUnauthorized
	case booking.KindBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeWorkflowError renders a booking.Error with its Danish message.
func writeWorkflowError(w http.ResponseWriter, err error) int {
	var be *booking.Error
	if !errors.As(err, &be) {
		writeError(w, http.StatusInternalServerError, booking.MsgGeneric, string(booking.KindPersistence))
		return http.StatusInternalServerError
	}
	status := statusForKind(be.Kind)
	writeJSON(w, status, errorResponse{Error: be.Message, Code: string(be.Kind), Field: be.Field})
	return status
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
