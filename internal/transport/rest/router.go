package rest

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"neodiag/internal/service"
	"neodiag/internal/transport/rest/handler"
	"neodiag/internal/transport/rest/middleware"
	"neodiag/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	InterviewService *service.InterviewService
	ReviewService    *service.ReviewService
	WSHub            *ws.Hub
	HealthChecks     map[string]handler.HealthCheck
	Gatherer         prometheus.Gatherer
	AllowedOrigins   []string
	Logger           *slog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService, logger)
	interviewHandler := handler.NewInterviewHandler(c.InterviewService, logger)
	reviewHandler := handler.NewReviewHandler(c.ReviewService)
	healthHandler := handler.NewHealthHandler(c.HealthChecks)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/interviews", interviewHandler.Start).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	if c.WSHub != nil {
		wsHandler := ws.NewHandler(c.WSHub, c.AuthService, logger)
		v1.HandleFunc("/ws/reviewer", wsHandler.ReviewerWS).Methods("GET")
		v1.HandleFunc("/ws/interviews/{id}", wsHandler.SubjectWS).Methods("GET")
	}

	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Subject routes (require a token scoped to {id})
	subjectRoutes := v1.PathPrefix("/interviews/{id}").Subrouter()
	subjectRoutes.Use(authMW.RequireSubject)

	subjectRoutes.HandleFunc("/question", interviewHandler.Question).Methods("GET", "OPTIONS")
	subjectRoutes.HandleFunc("/answers", interviewHandler.Answer).Methods("POST", "OPTIONS")
	subjectRoutes.HandleFunc("/finish", interviewHandler.Finish).Methods("POST", "OPTIONS")
	subjectRoutes.HandleFunc("/result", interviewHandler.Result).Methods("GET", "OPTIONS")

	// Reviewer routes (require reviewer auth)
	reviewerRoutes := v1.PathPrefix("/sessions").Subrouter()
	reviewerRoutes.Use(authMW.RequireReviewer)

	reviewerRoutes.HandleFunc("", reviewHandler.List).Methods("GET", "OPTIONS")
	reviewerRoutes.HandleFunc("/{id}", reviewHandler.Get).Methods("GET", "OPTIONS")
	reviewerRoutes.HandleFunc("/{id}/export", reviewHandler.Export).Methods("GET", "OPTIONS")
	reviewerRoutes.HandleFunc("/{id}/table", reviewHandler.Table).Methods("GET", "OPTIONS")
	reviewerRoutes.HandleFunc("/{id}/report", reviewHandler.GenerateReport).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
