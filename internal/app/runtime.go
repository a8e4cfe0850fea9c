package app

import (
	"context"
	"database/sql"
	"fmt"

	"meshbridge/internal/bridge"
	"meshbridge/internal/bus"
	"meshbridge/internal/commands"
	"meshbridge/internal/config"
	"meshbridge/internal/dashboard"
	"meshbridge/internal/domain"
	"meshbridge/internal/integrations"
	"meshbridge/internal/logging"
	"meshbridge/internal/persistence"
)

// Runtime wires configuration, the event bus, the forwarding engine and
// the optional sidecars (persistence, dashboard gateway) into one process.
type Runtime struct {
	cfg        config.BridgeConfig
	logManager *logging.Manager

	bus       bus.MessageBus
	registry  *bridge.Registry
	engine    *bridge.Engine
	nodeStore *domain.NodeStore

	db      *sql.DB
	writer  *persistence.WriterQueue
	gateway *dashboard.Gateway

	cancel context.CancelFunc
}

func NewRuntime(cfg config.BridgeConfig, logManager *logging.Manager) *Runtime {
	return &Runtime{cfg: cfg, logManager: logManager}
}

// Start brings every component up and connects the configured endpoints.
// A single endpoint failing to connect is logged and skipped; the bridge
// still serves the rest.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	logger := r.logManager.Logger("runtime")

	r.bus = bus.New(r.logManager.Logger("bus"))
	r.registry = bridge.NewRegistry()
	r.engine = bridge.NewEngine(r.logManager.Logger("bridge"), r.bus, r.registry, bridge.Config{
		Mode:            bridge.MatchMode(r.cfg.Bridge.MatchMode),
		DedupCapacity:   r.cfg.Bridge.DedupCapacity,
		QueueCapacity:   r.cfg.Bridge.QueueCapacity,
		PendingCapacity: r.cfg.Bridge.PendingCapacity,
		QueueExpiry:     r.cfg.Bridge.QueueExpiry(),
		QueueDrainDelay: r.cfg.Bridge.QueueDrainDelay(),
		SendTimeout:     r.cfg.Bridge.SendTimeout(),
	})

	r.nodeStore = domain.NewNodeStore()
	r.nodeStore.Start(ctx, r.bus)

	if err := r.startPersistence(ctx); err != nil {
		logger.Warn("persistence disabled", "error", err)
	}

	r.engine.SetDispatcher(r.buildDispatcher())

	if r.cfg.Dashboard.Enabled {
		r.gateway = dashboard.NewGateway(r.logManager.Logger("dashboard"), r.cfg.Dashboard, r.bus, r)
		if err := r.gateway.Start(ctx); err != nil {
			logger.Warn("dashboard gateway unavailable", "error", err)
			r.gateway = nil
		}
	}

	for _, epCfg := range r.cfg.Endpoints {
		if err := r.connectEndpoint(ctx, epCfg); err != nil {
			logger.Error("endpoint connect failed", "family", epCfg.Family, "path", epCfg.Path, "error", err)
		}
	}

	logger.Info("bridge started", "endpoints", r.registry.Len(), "match_mode", r.cfg.Bridge.MatchMode)

	return nil
}

func (r *Runtime) startPersistence(ctx context.Context) error {
	if !r.cfg.Persistence.Enabled {
		return nil
	}

	db, err := persistence.Open(ctx, r.cfg.Persistence.DBPath)
	if err != nil {
		return fmt.Errorf("open node inventory: %w", err)
	}
	r.db = db

	repo := persistence.NewNodeRepo(db)
	if nodes, err := repo.ListSortedByLastHeard(ctx); err == nil {
		r.nodeStore.Load(nodes)
	} else {
		r.logManager.Logger("persistence").Warn("load node inventory failed", "error", err)
	}

	r.writer = persistence.NewWriterQueue(r.logManager.Logger("persistence"), 0)
	r.writer.Start(ctx)
	persistence.NewNodeProjection(r.logManager.Logger("persistence"), repo, r.writer).Start(ctx, r.bus)

	return nil
}

func (r *Runtime) buildDispatcher() *commands.Dispatcher {
	dispatcher := commands.NewDispatcher(r.logManager.Logger("commands"), commands.Config{
		Prefix:             r.cfg.Bridge.CommandPrefix,
		Enabled:            r.cfg.Bridge.EnabledCommands,
		RateLimit:          r.cfg.Bridge.RateLimitPerMinute,
		AssistantRateLimit: r.cfg.Bridge.AssistantLimitPerMin,
	})

	var weather commands.WeatherService
	if r.cfg.Integrations.WeatherURL != "" {
		weather = integrations.NewWeatherClient(r.cfg.Integrations.WeatherURL)
	}
	var assistant commands.AssistantService
	if r.cfg.Integrations.AssistantURL != "" {
		assistant = integrations.NewAssistantClient(
			r.cfg.Integrations.AssistantURL,
			r.cfg.Integrations.AssistantKey,
			r.cfg.Integrations.AssistantTimeout(),
		)
	}
	var notifier commands.Notifier
	if r.cfg.Integrations.DesktopNotify {
		notifier = integrations.NewDesktopNotifier()
	}

	commands.RegisterBuiltins(dispatcher, r.registry, r.nodeStore, weather, assistant, notifier)

	return dispatcher
}

func (r *Runtime) connectEndpoint(ctx context.Context, epCfg config.EndpointConfig) error {
	handler, err := newHandlerForEndpoint(epCfg, r.logManager.Logger("protocol."+string(epCfg.Family)))
	if err != nil {
		return err
	}
	if _, err := r.engine.AddEndpoint(ctx, handler, epCfg.Name); err != nil {
		return err
	}

	return nil
}

// Shutdown stops everything in reverse order. It never panics, even when
// called with components that failed to start.
func (r *Runtime) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.gateway != nil {
		r.gateway.Stop()
	}
	if r.engine != nil {
		r.engine.Shutdown()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
	if r.logManager != nil {
		_ = r.logManager.Close()
	}
}
