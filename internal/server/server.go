package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/api"
	"sentinel/internal/auth"
	"sentinel/internal/backend"
	"sentinel/internal/config"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/events"
	"sentinel/internal/intel"
	"sentinel/internal/metrics"
	"sentinel/internal/poller"
	"sentinel/internal/store"
	"sentinel/internal/websocket"
	"sentinel/web"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Dependencies are the collaborators the HTTP layer serves
type Dependencies struct {
	Config    *config.Config
	Auth      *auth.Service
	API       *api.Set
	AI        *ai.Service
	Intel     *intel.Clients
	Pollers   *poller.Manager
	Events    *events.Pipeline
	WebSocket *websocket.WebSocketManager
	Metrics   *metrics.Collector
	Logger    *zap.Logger
	// Pages overrides the embedded page shells, mainly for tests
	Pages fs.FS
}

// Server represents the HTTP server
type Server struct {
	cfg      *config.Config
	auth     *auth.Service
	api      *api.Set
	ai       *ai.Service
	intel    *intel.Clients
	pollers  *poller.Manager
	events   *events.Pipeline
	alerts   *events.AlertingSystem
	ws       *websocket.WebSocketManager
	metrics  *metrics.Collector
	logger   *zap.Logger
	errors   *apperrors.ErrorHandler
	pages    fs.FS
	limiter  *RateLimiter
	router   *mux.Router
	handler  http.Handler
	started  time.Time
	shutdown time.Duration
}

// New builds the router and middleware chain
func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pages := deps.Pages
	if pages == nil {
		pages = web.Dist
	}

	s := &Server{
		cfg:      deps.Config,
		auth:     deps.Auth,
		api:      deps.API,
		ai:       deps.AI,
		intel:    deps.Intel,
		pollers:  deps.Pollers,
		events:   deps.Events,
		ws:       deps.WebSocket,
		metrics:  deps.Metrics,
		logger:   logger,
		errors:   apperrors.NewErrorHandler(logger),
		pages:    pages,
		router:   mux.NewRouter(),
		started:  time.Now(),
		shutdown: 10 * time.Second,
	}

	if deps.Events != nil {
		s.alerts = deps.Events.Alerts()
	}

	s.errors.SetNotificationFunction(s.notifyServerError)
	s.router.Use(s.metricsMiddleware)
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		requestLogger(logger),
		securityHeadersMiddleware,
		corsMiddleware(s.cfg.HTTP.AllowedOrigins),
	}
	if s.cfg.HTTP.RateLimit > 0 {
		s.limiter = NewRateLimiter(s.cfg.HTTP.RateLimit, s.cfg.HTTP.Burst)
		middlewares = append(middlewares, rateLimitMiddleware(s.limiter))
	}
	middlewares = append(middlewares, s.auth.RouteGuard)
	s.handler = chain(s.router, middlewares...)
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info(fmt.Sprintf("🌐 Sentinel server started on http://localhost:%d", port))
	s.logger.Info(fmt.Sprintf("📊 API endpoints available on http://localhost:%d/api/v1/", port))
	s.logger.Info(fmt.Sprintf("🔗 WebSocket available on ws://localhost:%d/ws", port))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.logger.Info("🛑 Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.auth.RequireAPIAuth(s.ws.HandleConnection))

	v1 := r.PathPrefix("/api/v1").Subrouter()
	private := func(path string, h http.HandlerFunc, methods ...string) {
		v1.HandleFunc(path, s.auth.RequireAPIAuth(h)).Methods(methods...)
	}

	// Authentication
	v1.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	v1.HandleFunc("/auth/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	v1.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	v1.HandleFunc("/auth/session", s.handleSession).Methods(http.MethodGet)

	// Account rows
	private("/profile", s.handleGetProfile, http.MethodGet)
	private("/profile", s.handleUpdateProfile, http.MethodPut)
	private("/settings", s.handleGetSettings, http.MethodGet)
	private("/settings", s.handleUpdateSettings, http.MethodPut)

	// Upstream domain proxies
	private("/dashboard/overview", s.proxy("Dashboard", s.api.Dashboard.GetOverviewStats), http.MethodGet)
	private("/dashboard/security-feed", s.proxy("Dashboard", s.api.Dashboard.GetSecurityFeed), http.MethodGet)
	private("/dashboard/network-overview", s.proxy("Dashboard", s.api.Dashboard.GetNetworkOverview), http.MethodGet)

	private("/threats/active", s.proxy("Threat Detection", s.api.Threats.GetActiveThreats), http.MethodGet)
	private("/threats/stats", s.proxy("Threat Detection", s.api.Threats.GetThreatStats), http.MethodGet)
	private("/threats/scan", s.proxy("Threat Detection", s.api.Threats.RunFullScan), http.MethodPost)
	private("/threats/{id}/quarantine", s.proxyWithID("Threat Detection", s.api.Threats.QuarantineThreat), http.MethodPost)

	private("/network/status", s.proxy("Network Monitor", s.api.Network.GetNetworkStatus), http.MethodGet)
	private("/network/traffic", s.proxy("Network Monitor", s.api.Network.GetTrafficData), http.MethodGet)
	private("/network/devices", s.proxy("Network Monitor", s.api.Network.GetDeviceList), http.MethodGet)
	private("/network/block-ip", s.handleBlockIP, http.MethodPost)

	private("/incidents", s.proxy("Incident Response", s.api.Incidents.GetIncidents), http.MethodGet)
	private("/incidents", s.handleCreateIncident, http.MethodPost)
	private("/incidents/active", s.proxy("Incident Response", s.api.Incidents.GetActiveIncidents), http.MethodGet)
	private("/incidents/{id}/resolve", s.proxyWithID("Incident Response", s.api.Incidents.ResolveIncident), http.MethodPost)

	private("/reports/security", s.proxy("Reports", s.api.Reports.GetSecurityReports), http.MethodGet)
	private("/reports/history", s.proxy("Reports", s.api.Reports.GetReportHistory), http.MethodGet)
	private("/reports/generate", s.handleGenerateReport, http.MethodPost)
	private("/reports/download/{id}", s.handleDownloadReport, http.MethodGet)

	// Local heuristics
	private("/ai/threat-analysis", s.handleThreatAnalysis, http.MethodPost)
	private("/ai/network-analysis", s.handleNetworkAnalysis, http.MethodPost)
	private("/ai/incident-response", s.handleIncidentResponse, http.MethodPost)
	private("/ai/report-generation", s.handleReportGeneration, http.MethodPost)
	private("/chatbot/message", s.handleChatMessage, http.MethodPost)

	// Upstream AI analysis
	private("/ai/remote/threat-analysis", s.proxyBody("AI Analysis", s.api.Analysis.AnalyzeThreat), http.MethodPost)
	private("/ai/remote/network-analysis", s.proxyBody("AI Analysis", s.api.Analysis.DetectNetworkAnomalies), http.MethodPost)
	private("/ai/remote/incident-response", s.proxyBody("AI Analysis", s.api.Analysis.GenerateIncidentResponse), http.MethodPost)
	private("/ai/remote/report-generation", s.handleRemoteReport, http.MethodPost)

	// Threat intelligence
	private("/intel/resource/{id:.+}", s.handleIntelResource, http.MethodGet)
	private("/intel/url-scan", s.handleIntelURLScan, http.MethodPost)
	private("/intel/url-check", s.handleIntelURLCheck, http.MethodPost)
	private("/intel/ip/{ip}", s.handleIntelIP, http.MethodGet)

	// Poller snapshots
	private("/views", s.handleListViews, http.MethodGet)
	private("/views/{page}", s.handleGetView, http.MethodGet)
	private("/views/{page}/refresh", s.handleRefreshView, http.MethodPost)

	// Alerts
	private("/alerts", s.handleGetAlerts, http.MethodGet)
	private("/alerts/clear-resolved", s.handleClearResolvedAlerts, http.MethodPost)
	private("/alerts/{id}/resolve", s.handleResolveAlert, http.MethodPost)

	// Operations
	private("/system", s.handleSystemMetrics, http.MethodGet)
	v1.HandleFunc("/docs", s.handleAPIDocs).Methods(http.MethodGet)

	// Page shells and static assets
	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(s.pages))).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.handlePage).Methods(http.MethodGet)
}

// handleHealth returns health check status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apperrors.SendSuccess(w, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().Format(time.RFC3339),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"ws_clients": s.ws.GetConnectionCount(),
	})
}

// handlePage serves the embedded shell for a page route
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page := web.PageFor(r.URL.Path)
	if page == "" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(s.pages, page)
	if err != nil {
		s.fail(w, r, "pages", apperrors.NewInternalError("Page shell missing", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// fail classifies err, logs it and writes the JSON error body
func (s *Server) fail(w http.ResponseWriter, r *http.Request, service string, err error) {
	appErr := classify(service, err)
	appErr.WithRequestID(requestIDFrom(r.Context()))
	if user, ok := auth.GetUserFromContext(r.Context()); ok {
		appErr.WithUserID(user.ID)
	}
	s.errors.HandleError(appErr)
	apperrors.SendError(w, appErr)
}

// notifyServerError publishes 5xx failures as system events so the broker
// sees upstream outages alongside the analysis events
func (s *Server) notifyServerError(appErr *apperrors.AppError) {
	if s.events == nil || appErr.StatusCode < http.StatusInternalServerError {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.events.Emit(ctx, events.Event{
		Type:   events.SystemEvent,
		Source: "http",
		Data: map[string]any{
			"code":      appErr.Code,
			"status":    appErr.StatusCode,
			"message":   appErr.Message,
			"requestId": appErr.RequestID,
		},
	})
}

// classify maps domain errors onto the HTTP error taxonomy
func classify(service string, err error) *apperrors.AppError {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrNoUser):
		return apperrors.NewAuthenticationError(err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		return apperrors.NewAppError(apperrors.ErrorTypeConflict, "EMAIL_TAKEN", err.Error(), err)
	case errors.Is(err, intel.ErrNotConfigured):
		return apperrors.NewUnavailableError(service)
	case errors.Is(err, intel.ErrInvalidInput):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NewNotFoundError(service)
	case errors.Is(err, auth.ErrInvalidPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return apperrors.NewValidationError(err.Error(), nil)
	}

	// The backend answers 400 and 422 for input it will not accept, such as
	// a weak password.
	var backendErr *backend.Error
	if errors.As(err, &backendErr) &&
		(backendErr.Status == http.StatusBadRequest || backendErr.Status == http.StatusUnprocessableEntity) {
		return apperrors.NewValidationError(backendErr.Message, map[string]interface{}{
			"upstream_status": backendErr.Status,
			"upstream_code":   backendErr.Code,
		})
	}
	return apperrors.FromError(service, err)
}
