// Package api serves the read-only status API of the watchdog.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/plexwatch/internal/api/models"
	"github.com/smazurov/plexwatch/internal/events"
	"github.com/smazurov/plexwatch/internal/logging"
	"github.com/smazurov/plexwatch/internal/process"
	"github.com/smazurov/plexwatch/internal/status"
	"github.com/smazurov/plexwatch/internal/version"
)

// ProcessLister lists processes matching a wildcard.
type ProcessLister interface {
	Matching(pattern string) ([]process.Entry, error)
}

// Options configures the API server. Every dependency except Tracker is optional;
// routes whose dependency is missing are not registered.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Tracker           *status.Tracker
	EventBus          *events.Bus
	Processes         ProcessLister
	ProcessPattern    string
	Systemd           UnitStatusProvider
	SystemdUnit       string
	PrometheusHandler http.Handler
}

// Server is the Huma v2 status API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	const realm = `Basic realm="plexwatch"`
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				ctx.SetHeader("WWW-Authenticate", realm)
				huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid authentication type")
				return
			}
			encoded = authHeader[len(prefix):]
		} else {
			// SSE clients pass base64 credentials as ?auth=
			encoded = ctx.Query("auth")
		}

		if encoded == "" {
			ctx.SetHeader("WWW-Authenticate", realm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", realm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}

		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok || user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", realm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	if opts.Tracker == nil {
		opts.Tracker = status.NewTracker()
	}

	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("plexwatch API", version.Version)
	config.Info.Description = "Status of the Plex Media Server watchdog"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Stop is called. It returns nil after Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting status API", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the server immediately, dropping open SSE streams.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping status API")
	return s.httpServer.Close()
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(context.Context, *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(context.Context, *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Watchdog Status",
		Description: "Current loop state, last probe and last remediation",
		Tags:        []string{"watchdog"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(context.Context, *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.options.Tracker.Snapshot()}, nil
	})

	s.registerProcessRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerSystemdRoutes()
}

func (s *Server) registerProcessRoutes() {
	if s.options.Processes == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "Supervised Processes",
		Description: "Processes whose name matches the family pattern",
		Tags:        []string{"watchdog"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(context.Context, *struct{}) (*models.ProcessesResponse, error) {
		entries, err := s.options.Processes.Matching(s.options.ProcessPattern)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read process table", err)
		}
		if entries == nil {
			entries = []process.Entry{}
		}
		return &models.ProcessesResponse{
			Body: models.ProcessesData{
				Pattern:   s.options.ProcessPattern,
				Processes: entries,
				Count:     len(entries),
			},
		}, nil
	})
}

// withAuth returns security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
