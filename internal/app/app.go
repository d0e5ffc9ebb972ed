// Package app wires the controller manager to the host: udev, hidraw,
// sysfs, the settings file, the control API and optional telemetry.
package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sstallion/go-hid"

	"github.com/MrSnakeDoc/padherd/internal/config"
	"github.com/MrSnakeDoc/padherd/internal/driverstore"
	"github.com/MrSnakeDoc/padherd/internal/host"
	"github.com/MrSnakeDoc/padherd/internal/hotplug"
	"github.com/MrSnakeDoc/padherd/internal/httpserver"
	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/manager"
	"github.com/MrSnakeDoc/padherd/internal/pad"
	"github.com/MrSnakeDoc/padherd/internal/powercycle"
	"github.com/MrSnakeDoc/padherd/internal/probe"
	"github.com/MrSnakeDoc/padherd/internal/redis"
	"github.com/MrSnakeDoc/padherd/internal/registry"
	"github.com/MrSnakeDoc/padherd/internal/scheduler"
	"github.com/MrSnakeDoc/padherd/internal/settings"
	redisstore "github.com/MrSnakeDoc/padherd/internal/store/redis"
	"github.com/MrSnakeDoc/padherd/internal/usbhost"
	"github.com/MrSnakeDoc/padherd/internal/version"
)

const sysRoot = "/sys"

type App struct {
	cfg    *config.Config
	logger logger.Logger

	manager    *manager.Manager
	monitor    *hotplug.Monitor
	reconciler *scheduler.DriverReconciler
	collector  *scheduler.CyclerCollector
	server     *httpserver.Server

	redisClient *goredis.Client
	telemetry   *redisstore.Telemetry
}

// New builds every component. Nothing touches a device until Run.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	store, err := settings.Open(cfg.SettingsFile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	reg := registry.New()
	sysfs := usbhost.NewSysfs(sysRoot, usbhost.LibUSB{}, log)
	power := powercycle.New(sysfs, driverstore.New(cfg.DriverStoreFile), reg, cfg.DefaultDriver, log)
	factory := pad.NewFactory(sysfs, log)
	prober := probe.New(probe.NewHIDChannel(), cfg.ProbeTimeout, cfg.ProbeBackoff, log)

	machine, err := host.Load(sysRoot)
	if err != nil {
		log.Warn("failed to read host identity", logger.Error(err))
	}
	if machine != nil {
		log.Info("host detected",
			logger.String("manufacturer", machine.Manufacturer()),
			logger.String("product", machine.Product()),
			logger.Bool("embedded_controller", machine.HasEmbeddedController()))
	}

	a := &App{
		cfg:    cfg,
		logger: log,
	}

	mdeps := manager.Deps{
		Registry: reg,
		Factory:  factory,
		Prober:   prober,
		Power:    power,
		Settings: store,
		Cloaker:  factory,
		Slots:    sysfs,
		Virtual:  detachedVirtual{mode: manager.ParseVirtualMode(store.String(settings.HIDMode))},
	}
	if machine != nil {
		mdeps.Host = machine
	}

	if cfg.RedisEnabled() {
		client, err := redis.New(ctx, redis.OptionsFrom(cfg), log)
		if err != nil {
			log.Warn("telemetry disabled", logger.Error(err))
		} else {
			a.redisClient = client
			a.telemetry = redisstore.NewTelemetry(client, cfg.RedisStreamMaxLen, redisstore.DefaultBuffer, log)
			mdeps.Consumers = append(mdeps.Consumers, a.telemetry)
		}
	}

	a.manager = manager.New(manager.ConfigFrom(cfg), mdeps, log)
	if a.telemetry != nil {
		a.manager.Events().Subscribe(a.telemetry.Listener())
	}
	a.monitor = hotplug.NewMonitor(a.manager, log)

	resumeTrigger := make(chan struct{}, 1)
	a.reconciler = scheduler.NewDriverReconciler(power, log, cfg.DriverReconcileInterval, resumeTrigger)
	a.collector = scheduler.NewCyclerCollector(reg, power, a.manager, log, cfg.CyclerGCInterval, cfg.CyclerGCThreshold)

	d := deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		AllowedCIDRS:  cfg.AllowedCIDRS,
		TrustProxy:    cfg.TrustProxy,
		Manager:       a.manager,
		Drivers:       power,
		ResumeTrigger: resumeTrigger,
	}
	if a.telemetry != nil {
		d.Redis = redisPinger{a.redisClient}
		d.Dropped = a.telemetry.Dropped
	}
	a.server = httpserver.New(cfg, log, d)

	return a, nil
}

type redisPinger struct{ c *goredis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// Run starts the manager and its feeds, and blocks until ctx ends or the
// control API fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting "+version.String(), logger.String("listen", a.cfg.ListenPort))

	if err := hid.Init(); err != nil {
		return fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	defer func() {
		if err := hid.Exit(); err != nil {
			a.logger.Warn("failed to release hidapi", logger.Error(err))
		}
	}()

	if a.telemetry != nil {
		a.telemetry.Start(ctx)
	}
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start controller manager: %w", err)
	}
	if err := a.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start driver reconciler: %w", err)
	}
	if err := a.collector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start power-cycle collector: %w", err)
	}
	if err := a.monitor.Start(ctx); err != nil {
		a.shutdown()
		return fmt.Errorf("failed to start hot-plug monitor: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}
	a.shutdown()

	if runErr == nil {
		a.logger.Info("padherd stopped cleanly")
	}
	return runErr
}

// shutdown stops the feeds before the manager so no arrival races Stop,
// then restores every driver still owed.
func (a *App) shutdown() {
	a.monitor.Stop()
	a.collector.Stop()
	a.reconciler.Stop()
	a.manager.Stop()

	if n := a.reconciler.Reconcile(); n > 0 {
		a.logger.Info("restored drivers on shutdown", logger.Int("count", n))
	}

	if a.telemetry != nil {
		a.telemetry.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", logger.Error(err))
		}
	}
}

// PendingDrivers loads the driver store and returns the drivers owed a
// restoration, without starting anything.
func PendingDrivers(cfg *config.Config) (map[string]string, error) {
	store := driverstore.New(cfg.DriverStoreFile)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load driver store: %w", err)
	}
	return store.Snapshot(), nil
}

// ResumeDrivers restores every driver in the store and reports how many
// are still owed.
func ResumeDrivers(cfg *config.Config, log logger.Logger) (int, error) {
	reg := registry.New()
	sysfs := usbhost.NewSysfs(sysRoot, usbhost.LibUSB{}, log)
	power := powercycle.New(sysfs, driverstore.New(cfg.DriverStoreFile), reg, cfg.DefaultDriver, log)
	if err := power.Load(); err != nil {
		return 0, fmt.Errorf("failed to load driver store: %w", err)
	}

	scheduler.NewDriverReconciler(power, log, cfg.DriverReconcileInterval, nil).Reconcile()
	return len(power.Pending()), nil
}
