package api

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/practicedesk/console/internal/api/handler"
	"github.com/practicedesk/console/internal/api/middleware"
	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// Dependencies is everything the HTTP boundary serves.
type Dependencies struct {
	Gate    handler.SessionGate
	Mirrors ports.Mirrors
	Gateway ports.MutationGateway
	Checks  map[string]handler.Check
	Log     zerolog.Logger

	JWTSecret   string
	TokenTTL    time.Duration
	ChangesWait time.Duration
	FeeCurrency string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))

	// --- Handlers ---
	tokens := handler.NewTokenIssuer(deps.JWTSecret, deps.TokenTTL)
	sessionHandler := handler.NewSessionHandler(deps.Gate, tokens)
	clientHandler := handler.NewClientHandler(deps.Mirrors, deps.Gateway, deps.FeeCurrency)
	reportHandler := handler.NewReportHandler(deps.Mirrors, deps.Gateway)
	staffHandler := handler.NewStaffHandler(deps.Mirrors)
	changesHandler := handler.NewChangesHandler(deps.Mirrors, deps.ChangesWait)

	// --- Session routes ---
	e.GET("/session", sessionHandler.Status)
	e.POST("/session/login", sessionHandler.Login)

	authed := e.Group("", middleware.Auth(deps.JWTSecret), middleware.Session(deps.Gate))
	authed.POST("/session/logout", sessionHandler.Logout)
	authed.GET("/session/me", sessionHandler.Me)

	// --- Data routes ---
	authed.GET("/clients", clientHandler.List)
	authed.POST("/clients", clientHandler.Create)
	authed.POST("/clients/:id/declare", clientHandler.Declare)
	authed.DELETE("/clients/:id", clientHandler.Delete)

	authed.GET("/reports", reportHandler.List)
	authed.POST("/reports", reportHandler.Create)
	authed.DELETE("/reports/:id", reportHandler.Delete)

	authed.GET("/staff", staffHandler.List, middleware.RBAC(domain.RoleAdministrator))
	authed.GET("/changes", changesHandler.Wait)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness: is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
