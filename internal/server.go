package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/dashboard"
	"github.com/kazz187/sitecrew/internal/project"
	"github.com/kazz187/sitecrew/internal/pushnotification"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/clog"
)

const apiPrefix = "/api/v1"

type Server struct {
	server                 *http.Server
	env                    *config.Env
	health                 *grpchealth.StaticChecker
	assignmentServer       *assignment.Server
	projectServer          *project.Server
	dashboardServer        *dashboard.Server
	pushNotificationServer *pushnotification.Server
}

func NewServer(
	env *config.Env,
	assignmentServer *assignment.Server,
	projectServer *project.Server,
	dashboardServer *dashboard.Server,
	pushNotificationServer *pushnotification.Server,
) *Server {
	return &Server{
		env:                    env,
		health:                 grpchealth.NewStaticChecker(),
		assignmentServer:       assignmentServer,
		projectServer:          projectServer,
		dashboardServer:        dashboardServer,
		pushNotificationServer: pushNotificationServer,
	}
}

// Handler builds the full handler chain. It is split from ListenAndServe so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		s.assignmentServer.Register(r)
		s.projectServer.Register(r)
		s.dashboardServer.Register(r)
		s.pushNotificationServer.Register(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.Unimplemented, "method not allowed", nil)
		})
	})

	mux := http.NewServeMux()

	mux.Handle("/health", &HealthChecker{checker: s.health})
	mux.Handle(apiPrefix+"/", r)
	mux.Handle(grpchealth.NewHandler(s.health, connect.WithInterceptors(s.interceptors()...)))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of every
// request, so cancelling it on shutdown also cancels in-flight work.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetStatus("", grpchealth.StatusNotServing)
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct {
	checker grpchealth.Checker
}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := hc.checker.Check(r.Context(), &grpchealth.CheckRequest{})
	if err != nil || resp.Status != grpchealth.StatusServing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/grpc.health.v1.Health/") {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
