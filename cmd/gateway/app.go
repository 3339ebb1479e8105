package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/config"
	"github.com/secgate-io/secgate/internal/gateway"
	"github.com/secgate-io/secgate/internal/middleware"
	"github.com/secgate-io/secgate/internal/observability/logging"
)

// App bundles the running pieces of the gateway process.
type App struct {
	config  *config.GatewayConfig
	logger  *logging.Logger
	gateway *gateway.Gateway
	engine  *gin.Engine
	server  *http.Server
	watcher *config.Watcher
}

// newApp wires the gateway and the HTTP server.
func newApp(cfg *config.GatewayConfig, logger *logging.Logger) (*App, error) {
	gw, err := gateway.New(cfg, logger.Logger)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.Recovery(logger.Logger))
	engine.Use(gw.Middleware())
	engine.Use(gw.AllowlistGate())

	app := &App{
		config:  cfg,
		logger:  logger,
		gateway: gw,
		engine:  engine,
		server: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
			WriteTimeout: cfg.Server.WriteTimeout.Duration(),
			IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
		},
	}

	app.registerRoutes()

	return app, nil
}

// run starts the server, the config watcher, and blocks until shutdown.
func run(app *App, configPath string, logger *logging.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.startWatcher(ctx, configPath)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("security gateway listening",
			zap.String("address", app.config.Server.Address()),
			zap.Bool("tls", app.config.Server.TLS.Enabled),
		)
		if app.config.Server.TLS.Enabled {
			errCh <- app.server.ListenAndServeTLS(app.config.Server.TLS.CertFile, app.config.Server.TLS.KeyFile)
		} else {
			errCh <- app.server.ListenAndServe()
		}
	}()

	waitForShutdown(app, errCh, logger)
}

// startWatcher begins hot reload of the configuration file. Watcher
// failures only cost reload, so they are logged and ignored.
func (a *App) startWatcher(ctx context.Context, configPath string) {
	watcher, err := config.NewWatcher(configPath, func(cfg *config.GatewayConfig) {
		a.gateway.Reload(cfg)
	}, config.WithWatcherLogger(a.logger.Logger))
	if err != nil {
		a.logger.Warn("config watcher unavailable, hot reload disabled", zap.Error(err))
		return
	}

	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("config watcher failed to start, hot reload disabled", zap.Error(err))
		return
	}

	a.watcher = watcher
}
