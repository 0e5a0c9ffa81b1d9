package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trafego/trafegodns/config"
	"trafego/trafegodns/events"
	trafegohttp "trafego/trafegodns/http"
	"trafego/trafegodns/metrics"
	"trafego/trafegodns/provider"
	_ "trafego/trafegodns/provider/providers"
	"trafego/trafegodns/reconcile"
	"trafego/trafegodns/router"
	"trafego/trafegodns/source"
	"trafego/trafegodns/tracker"
)

const version = "trafegodns v1.0.0"

func main() {
	// Parse command
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(0)
		case "serve":
			// Continue to serve
		case "version":
			fmt.Println(version)
			return
		default:
			fmt.Printf("Unknown command: %s\n", os.Args[1])
			fmt.Println("Available commands: serve, healthcheck, version")
			os.Exit(1)
		}
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting trafegodns")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize tracker store", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	go func() {
		for ev := range bus.Subscribe(ctx) {
			slog.Info("record event",
				"event", ev.Type,
				"hostname", ev.Hostname,
				"recordType", ev.RecordType,
				"details", ev.Details)
		}
	}()
	tr := tracker.New(store, bus)
	protected := tracker.NewProtected(cfg.Cleanup.ProtectedHostnames)

	// Initialize providers. A provider that fails to initialize is
	// skipped so the remaining ones keep reconciling.
	rt := router.New()
	for _, pc := range cfg.Providers {
		inst, err := buildProvider(ctx, pc)
		if err != nil {
			slog.Error("Provider initialization failed, skipping",
				"provider", pc.ID, "type", pc.Type, "error", err)
			continue
		}
		rt.Add(inst)
		slog.Info("Provider initialized", "provider", pc.ID, "type", pc.Type, "zone", inst.Zone())
	}
	if len(rt.All()) == 0 {
		slog.Error("No providers available")
		os.Exit(1)
	}

	engine := reconcile.New(rt, tr, bus, protected)
	cleaner := reconcile.NewCleaner(engine,
		config.Duration(cfg.Cleanup.GracePeriod, reconcile.DefaultGracePeriod),
		config.Duration(cfg.Cleanup.SweepInterval, reconcile.DefaultSweepInterval))

	// Load the desired state and keep it fresh while the file changes.
	fileSource := source.NewFileSource(cfg.Desired.File, engine)
	if err := fileSource.LoadAndApply(ctx); err != nil {
		slog.Warn("Failed to load initial desired state", "error", err)
	}
	go func() {
		if err := fileSource.Watch(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Desired-state watcher failed", "error", err)
		}
	}()

	go engine.Run(ctx, config.Duration(cfg.Sync.PollInterval, 0))
	go cleaner.Run(ctx)

	// Start HTTP management server if enabled.
	if cfg.HTTP.Enabled {
		authToken := ""
		if cfg.HTTP.Auth.Enabled && cfg.HTTP.Auth.TokenEnv != "" {
			authToken = os.Getenv(cfg.HTTP.Auth.TokenEnv)
		}
		httpSrv := trafegohttp.NewServer(trafegohttp.ServerConfig{
			Listen:    cfg.HTTP.Listen,
			AuthToken: authToken,
		}, engine, cleaner, tr, rt)
		go func() {
			if err := httpSrv.Start(); err != nil {
				slog.Error("HTTP management server failed", "error", err)
			}
		}()
		defer httpSrv.Shutdown()
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	slog.Info("Shutting down...")

	cancel()
	slog.Info("Stopped")
}

// buildStore constructs the configured ownership ledger backend.
func buildStore(ctx context.Context, cfg *config.Config) (tracker.Store, error) {
	switch cfg.Tracker.Type {
	case "", "memory":
		slog.Warn("Using in-memory tracker store; ownership state is lost on restart")
		return tracker.NewMemoryStore(), nil
	case "file":
		return tracker.NewJSONFileStore(cfg.Tracker.File.Path)
	case "configmap":
		client, err := tracker.NewK8sClient()
		if err != nil {
			return nil, fmt.Errorf("create Kubernetes client: %w", err)
		}
		namespace := cfg.Tracker.ConfigMap.Namespace
		if namespace == "" {
			namespace = "default"
		}
		dataKey := cfg.Tracker.ConfigMap.DataKey
		if dataKey == "" {
			dataKey = "records.yaml"
		}
		return tracker.NewConfigMapStore(ctx, client, namespace, cfg.Tracker.ConfigMap.Name, dataKey)
	default:
		return nil, fmt.Errorf("unknown tracker type %q", cfg.Tracker.Type)
	}
}

// buildProvider constructs and initializes one provider instance.
func buildProvider(ctx context.Context, pc config.ProviderConfig) (*router.Instance, error) {
	var refresh time.Duration
	if pc.CacheRefreshInterval != "" {
		refresh = config.Duration(pc.CacheRefreshInterval, 0)
	}

	p, err := provider.New(pc.Type, provider.Settings{
		ID:                   pc.ID,
		Name:                 pc.Name,
		Zone:                 pc.Zone,
		Credentials:          pc.Credentials,
		CacheRefreshInterval: refresh,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Init(ctx); err != nil {
		return nil, err
	}

	name := pc.Name
	if name == "" {
		name = pc.ID
	}
	return &router.Instance{ID: pc.ID, Name: name, Provider: p}, nil
}
