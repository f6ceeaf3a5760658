package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/cookie"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/services"
)

// API wires the LTI tool flows to HTTP. Routes remain in Routes.
type API struct {
	Login     *lti.LoginInitiator
	Validator *lti.Validator
	// JWKS serves the tool's public keys.
	JWKS http.Handler
	// Cookies configures the state transport for login and launch.
	Cookies cookie.Options
	// LaunchURL is the redirect_uri sent to platforms.
	LaunchURL string
	// SessionTTL bounds the launch session cookie (default 2h).
	SessionTTL time.Duration
	// ServiceClient is used for AGS and NRPS calls (default 15s timeout).
	ServiceClient  *http.Client
	AllowedOrigins []string
	Logger         *slog.Logger

	mu         sync.Mutex
	connectors map[string]*services.Connector
}

// Routes builds the router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	// platforms and browsers fetch keys cross-origin
	r.With(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		MaxAge:         300,
	})).Get("/.well-known/jwks.json", a.jwks)

	r.Route("/lti", func(lr chi.Router) {
		lr.Get("/login", a.handleLogin)
		lr.Post("/login", a.handleLogin)
		lr.Post("/launch", a.handleLaunch)

		lr.Group(func(gr chi.Router) {
			if len(a.AllowedOrigins) > 0 {
				gr.Use(cors.Handler(cors.Options{
					AllowedOrigins:   a.AllowedOrigins,
					AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
					AllowedHeaders:   []string{"Content-Type"},
					ExposedHeaders:   []string{"Content-Length"},
					AllowCredentials: true,
					MaxAge:           300,
				}))
			}
			gr.Get("/launches/{launchID}", a.handleGetLaunch)
			gr.Post("/launches/{launchID}/deeplink", a.handleDeepLink)
			gr.Post("/launches/{launchID}/score", a.handleScore)
			gr.Get("/launches/{launchID}/members", a.handleMembers)
		})
	})
	return r
}

func (a *API) jwks(w http.ResponseWriter, r *http.Request) {
	if a.JWKS == nil {
		writeJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
		return
	}
	a.JWKS.ServeHTTP(w, r)
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger().LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// connector returns the cached service connector for reg so access tokens
// are reused across requests.
func (a *API) connector(reg lti.Registration) *services.Connector {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectors == nil {
		a.connectors = map[string]*services.Connector{}
	}
	key := reg.Issuer + "|" + reg.ClientID
	c, ok := a.connectors[key]
	if !ok {
		c = services.NewConnector(reg, a.ServiceClient)
		a.connectors[key] = c
	}
	return c
}

// ServerOptions are the listener settings for Serve.
type ServerOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Serve runs handler until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, handler http.Handler, opts ServerOptions, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:         opts.Addr,
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("service listening", slog.String("address", opts.Addr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	logger.Info("HTTP server shutdown complete")
	return nil
}
