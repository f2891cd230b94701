package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/maneesh/docsync/internal/metrics"
	"github.com/maneesh/docsync/internal/session"
)

// HealthChecker reports readiness of a dependency
type HealthChecker func(ctx context.Context) error

// RouterDeps are the collaborators of the HTTP surface
type RouterDeps struct {
	Documents    DocumentService
	Users        UserStoreProvider
	Tokens       *session.TokenService
	Resolver     *session.Resolver
	CookieSecure bool
	MaxUpload    int64
	Health       HealthChecker
	Logger       *slog.Logger
}

// NewRouter registers every route
func NewRouter(deps RouterDeps) *mux.Router {
	logger := deps.Logger.With(slog.String("component", "http"))

	router := mux.NewRouter()
	router.Use(RequestLogger(logger))
	router.Use(metrics.Middleware)

	// Health and metrics endpoints (no tracing needed)
	router.HandleFunc("/health", healthHandler(deps.Health)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	auth := NewAuthHandler(deps.Users, deps.Tokens, deps.Resolver, deps.CookieSecure, logger)
	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/register", traced(http.HandlerFunc(auth.Register), "POST /api/register")).Methods(http.MethodPost)
	api.Handle("/login", traced(http.HandlerFunc(auth.Login), "POST /api/login")).Methods(http.MethodPost)
	api.Handle("/logout", traced(http.HandlerFunc(auth.Logout), "POST /api/logout")).Methods(http.MethodPost)
	api.Handle("/auth/me", traced(http.HandlerFunc(auth.Me), "GET /api/auth/me")).Methods(http.MethodGet)

	docs := api.NewRoute().Subrouter()
	docs.Use(RequireIdentity(deps.Resolver, logger))
	docs.Handle("/documents", traced(NewListHandler(deps.Documents, logger), "GET /api/documents")).Methods(http.MethodGet)
	docs.Handle("/documents/reconcile", traced(NewReconcileHandler(deps.Documents, logger), "GET /api/documents/reconcile")).Methods(http.MethodGet)
	docs.Handle("/documents", traced(NewDeleteHandler(deps.Documents, logger), "DELETE /api/documents")).Methods(http.MethodDelete)
	docs.Handle("/documents/{id}", traced(NewDeleteHandler(deps.Documents, logger), "DELETE /api/documents/{id}")).Methods(http.MethodDelete)
	docs.Handle("/documents/{id}/reindex", traced(NewReindexHandler(deps.Documents, logger), "POST /api/documents/{id}/reindex")).Methods(http.MethodPost)
	docs.Handle("/upload", traced(NewUploadHandler(deps.Documents, deps.MaxUpload, logger), "POST /api/upload")).Methods(http.MethodPost)
	docs.Handle("/query", traced(NewQueryHandler(deps.Documents, logger), "POST /api/query")).Methods(http.MethodPost)

	return router
}

func traced(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}

func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
