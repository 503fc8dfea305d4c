package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satriahrh/jembatan/adapters/funcexec"
	"github.com/satriahrh/jembatan/adapters/openairt"
	"github.com/satriahrh/jembatan/domain/repositories"
	"github.com/satriahrh/jembatan/internal/auth"
	"github.com/satriahrh/jembatan/internal/bridge"
	"github.com/satriahrh/jembatan/internal/config"
	"github.com/satriahrh/jembatan/internal/observe"
	"github.com/satriahrh/jembatan/internal/websocket"
)

// Deps carries everything the route handlers need. Ctx is the server's
// lifetime; its cancellation closes every live session with a shutdown
// reason.
type Deps struct {
	Ctx     context.Context
	Cfg     *config.Config
	Hub     *websocket.Hub
	Authn   *auth.Authenticator
	Metrics *observe.Metrics
	Logger  *zap.Logger
}

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, deps *Deps) {
	// Admission control: connections beyond MaxSessions are rejected before
	// the upgrade, so overload never reaches the upstream provider.
	var admission *semaphore.Weighted
	if deps.Cfg.MaxSessions > 0 {
		admission = semaphore.NewWeighted(int64(deps.Cfg.MaxSessions))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:         "ok",
			Service:        "jembatan",
			ActiveSessions: deps.Hub.Count(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/ws", func(c echo.Context) error {
		return websocketSession(c, deps, admission)
	})
}

// websocketSession authenticates the caller, upgrades the connection and
// hands it to a fresh session coordinator.
func websocketSession(c echo.Context, deps *Deps, admission *semaphore.Weighted) error {
	principal, err := deps.Authn.Principal(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		deps.Logger.Warn("WebSocket authentication failed", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: err.Error(),
		})
	}

	if admission != nil && !admission.TryAcquire(1) {
		deps.Logger.Warn("Session rejected, capacity reached",
			zap.Int("maxSessions", deps.Cfg.MaxSessions))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "capacity_reached",
			Message: "too many concurrent sessions",
		})
	}

	client, err := websocket.Upgrade(c.Response(), c.Request(), deps.Hub, deps.Logger)
	if err != nil {
		if admission != nil {
			admission.Release(1)
		}
		deps.Logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	upstream := openairt.NewClient(openairt.Config{
		URL:    deps.Cfg.UpstreamURL,
		APIKey: deps.Cfg.UpstreamAPIKey,
		Model:  deps.Cfg.UpstreamModel,
	}, deps.Logger)

	coordinator := bridge.NewSessionCoordinator(
		client,
		upstream,
		newExecutor(deps),
		openairt.Translator{},
		deps.Metrics,
		bridge.Config{
			MinCommitDuration:   deps.Cfg.MinCommitDuration,
			MaxBufferedBytes:    deps.Cfg.MaxBufferedBytes,
			FunctionCallCeiling: deps.Cfg.FunctionCallCeiling,
			UpstreamSampleRate:  openairt.SampleRate,
		},
		principal,
		deps.Logger,
	)

	client.Start(coordinator.SessionID(), coordinator)
	go func() {
		coordinator.Run(deps.Ctx)
		if admission != nil {
			admission.Release(1)
		}
	}()

	return nil
}

func newExecutor(deps *Deps) repositories.FunctionExecutor {
	if deps.Cfg.FunctionBackendURL == "" {
		return funcexec.DisabledExecutor{}
	}
	executor, err := funcexec.NewHTTPExecutor(funcexec.Config{
		BaseURL: deps.Cfg.FunctionBackendURL,
	}, deps.Logger)
	if err != nil {
		deps.Logger.Error("Failed to build function executor, falling back to disabled", zap.Error(err))
		return funcexec.DisabledExecutor{}
	}
	return executor
}
