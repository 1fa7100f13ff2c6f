package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"srdash/artifacts"
	"srdash/core"
	"srdash/core/validation"
	"srdash/db"
	"srdash/enhance"
	"srdash/logging"
	"srdash/pages"
	"srdash/shutdown"
	"srdash/simulation"
	"srdash/webui"
	"srdash/webui/auth"
)

const (
	sessionCleanupInterval = 5 * time.Minute
	historyCleanupInterval = 24 * time.Hour
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipValidation bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !skipValidation {
				result := validation.NewSuite(cfg, opts.envFile).
					WithOutput(cmd.OutOrStdout()).
					Validate(cmd.Context())
				if !result.Success {
					return result.FirstError()
				}
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return runServer(cmd.Context(), cfg, logger, true)
		},
	}
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "start without the pre-flight checks")
	return cmd
}

// runServer serves the dashboard until ctx is cancelled, a signal arrives
// (when handleSignals is set) or the listener fails. Everything it starts
// is torn down through the shutdown manager before it returns.
func runServer(ctx context.Context, cfg *core.Config, logger *logging.Logger, handleSignals bool) error {
	zl := logger.Zap()
	sm := shutdown.NewManager(zl)
	if handleSignals {
		sm.Start()
	}
	go func() {
		select {
		case <-ctx.Done():
			sm.Trigger()
		case <-sm.Context().Done():
		}
	}()

	logger.Info("configuration loaded",
		zap.String("version", core.Version),
		zap.String("api_url", cfg.APIURL),
		zap.String("addr", cfg.WebUIAddr()),
		zap.Bool("auth_enabled", cfg.AuthEnabled()),
		zap.Bool("history_enabled", cfg.HistoryEnabled),
		zap.Uint64("sim_seed", cfg.SimSeed),
		zap.Bool("dev_mode", cfg.DevMode))

	server, err := newDashboard(sm, cfg, zl)
	if err != nil {
		return errors.Join(err, sm.Shutdown())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(sm.Context())
	}()

	var serveErr error
	select {
	case <-sm.Context().Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("dashboard server failed", zap.Error(serveErr))
		}
	}
	return errors.Join(serveErr, sm.Shutdown())
}

// newDashboard builds every component behind the dashboard and registers
// its teardown with sm. Background loops run on sm.Context().
func newDashboard(sm *shutdown.Manager, cfg *core.Config, logger *zap.Logger) (*webui.Server, error) {
	ctx := sm.Context()
	sm.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(logger))

	pipelines, err := simulation.LoadPipelines(cfg.PipelinesFile)
	if err != nil {
		return nil, core.ErrInvalidValue("PIPELINES_FILE", cfg.PipelinesFile, err.Error())
	}

	var (
		history     pages.HistoryRecorder
		historyRead webui.EnhancementHistory
	)
	if cfg.HistoryEnabled {
		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		sm.Register("database", shutdown.PriorityDatabase, shutdown.Closer(database))

		repo := db.NewRepository(database)
		writer := db.NewHistoryWriter(repo, 0, logger)
		sm.Register("history", shutdown.PriorityHistory, shutdown.Closer(writer))
		history, historyRead = writer, repo

		cleanupDone := database.StartCleanupScheduler(ctx, db.CleanupSchedulerConfig{
			RetentionDays: cfg.HistoryRetainDays,
			Interval:      historyCleanupInterval,
			OnCleanup: func(result db.CleanupResult, err error) {
				if err != nil {
					logger.Warn("history cleanup failed", zap.Error(err))
				}
			},
		})
		sm.Register("history-cleanup", shutdown.PriorityWorkers, waitFor(cleanupDone))
	}

	// Both callbacks only fire after the broadcaster below is assigned.
	var broadcaster *webui.WebSocketBroadcaster

	client := enhance.NewClient(cfg.APIURL, core.GetEnhanceHTTPClient(cfg), logger).
		WithMaxResponseBytes(cfg.MaxResponseBytes)
	monitor := enhance.NewBackendHealthMonitor(client, enhance.HealthMonitorConfig{
		CheckInterval: cfg.HealthInterval,
		OnStatusChange: func(state enhance.HealthState) {
			broadcaster.BroadcastMessage(webui.NewBackendStatusMessage(state))
		},
		Logger: logger,
	})

	store := artifacts.NewStore(cfg.ArtifactBudgetBytes)
	manager, err := pages.NewManager(pages.Config{
		Pipelines:      pipelines,
		Store:          store,
		Enhancer:       client,
		History:        history,
		Seed:           cfg.SimSeed,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
		OnChange: func(state pages.State) {
			broadcaster.BroadcastMessage(webui.NewPageStateMessage(state))
		},
	})
	if err != nil {
		return nil, err
	}
	sm.Register("pages", shutdown.PriorityPages, shutdown.Action(manager.Close))

	broadcaster = webui.NewWebSocketBroadcaster(webui.BroadcasterConfig{
		InitialState: webui.InitialState(manager, monitor),
		Logger:       logger,
	})

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Start(ctx)
	}()
	sm.Register("health-monitor", shutdown.PriorityWorkers, waitFor(monitorDone))

	var authProvider webui.AuthProvider
	if cfg.AuthEnabled() {
		a, err := auth.NewAuthMiddleware(cfg.WebUIPassword, auth.DefaultConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dashboard auth: %w", err)
		}
		a.StartCleanup(ctx, sessionCleanupInterval)
		authProvider = a
	}

	api := webui.NewDashboardAPI(webui.DashboardAPIConfig{
		Manager:        manager,
		Store:          store,
		Pipelines:      pipelines,
		Backend:        monitor,
		History:        historyRead,
		Clients:        broadcaster.ClientCount,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	serverCfg := webui.DefaultServerConfig()
	serverCfg.Host = cfg.WebUIHost
	serverCfg.Port = cfg.WebUIPort
	serverCfg.APIMiddleware = sm.Middleware

	server := webui.NewServer(serverCfg, api, broadcaster, authProvider, logger)
	sm.Register("http-server", shutdown.PriorityHTTPServer, server.Shutdown)
	return server, nil
}

// waitFor returns a cleanup that waits for done to close.
func waitFor(done <-chan struct{}) shutdown.Func {
	return func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
