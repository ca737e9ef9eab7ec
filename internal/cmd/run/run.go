// Package run wires up and runs the automation engine: database, device
// clients, snapshot builder, executor and the scheduled evaluation cycle.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clambin/go-common/http/metrics"
	"github.com/lmittmann/tint"
	"github.com/powersync/powersync/internal/action"
	"github.com/powersync/powersync/internal/automation"
	"github.com/powersync/powersync/internal/device"
	"github.com/powersync/powersync/internal/device/amber"
	"github.com/powersync/powersync/internal/device/fleet"
	"github.com/powersync/powersync/internal/device/fronius"
	"github.com/powersync/powersync/internal/device/openweather"
	"github.com/powersync/powersync/internal/device/powerwall"
	"github.com/powersync/powersync/internal/device/sigenergy"
	"github.com/powersync/powersync/internal/device/solcast"
	"github.com/powersync/powersync/internal/engine"
	"github.com/powersync/powersync/internal/health"
	"github.com/powersync/powersync/internal/notifier"
	"github.com/powersync/powersync/internal/ocpp"
	"github.com/powersync/powersync/internal/snapshot"
	"github.com/powersync/powersync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var Cmd = cobra.Command{
	Use:   "run",
	Short: "run the automation engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), viper.GetViper(), cmd.Root().Version)
	},
}

const (
	deviceCallTimeout = 15 * time.Second
	modbusTimeout     = 5 * time.Second
)

func run(ctx context.Context, cfg *viper.Viper, version string) error {
	logger := newLogger(cfg)
	logger.Info("powersync starting", "version", version)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.GetString("database.path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	owners, err := db.Owners(ctx)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}

	var ocppServer *ocpp.Server
	if cfg.GetString("ocpp.addr") != "" {
		ocppServer = ocpp.NewServer(logger.With("component", "ocpp"))
	}

	requestMetrics := metrics.NewRequestMetrics(metrics.Options{Namespace: "powersync", Subsystem: "client"})
	prometheus.MustRegister(requestMetrics)

	registry := device.NewRegistry()
	for _, owner := range owners {
		if err = registerDevices(registry, owner, ocppServer, requestMetrics); err != nil {
			return fmt.Errorf("devices for %s: %w", owner.Name, err)
		}
	}

	builder := snapshot.NewBuilder(registry, cfg.GetDuration("weather.ttl"), deviceCallTimeout, logger.With("component", "snapshot"))

	notifiers := notifier.Notifiers{&notifier.SlogNotifier{Logger: logger.With("component", "notifier")}}
	if token := cfg.GetString("slack.token"); token != "" {
		notifiers = append(notifiers, &notifier.SlackNotifier{
			SlackSender: slack.New(token),
			Channel:     cfg.GetString("slack.channel"),
		})
	}

	engineMetrics := engine.NewMetrics()
	prometheus.MustRegister(engineMetrics)

	executor := action.NewExecutor(registry, notifiers, db, deviceCallTimeout, logger.With("component", "executor"))
	eng := engine.New(db, builder, executor, notifiers, engineMetrics, logger.With("component", "engine"))

	var h health.Health
	cycle := func(ctx context.Context) (int, error) {
		start := time.Now()
		cycleCtx, cancelCycle := context.WithTimeout(ctx, cfg.GetDuration("engine.timeout"))
		defer cancelCycle()
		triggered := eng.RunCycle(cycleCtx)
		h.Set(health.CycleStatus{CompletedAt: time.Now(), Triggered: triggered, Duration: time.Since(start)})
		return triggered, nil
	}

	// run one cycle at startup so /health comes up populated
	_, _ = cycle(ctx)

	scheduler := quartz.NewStdScheduler()
	scheduler.Start(ctx)
	err = scheduler.ScheduleJob(
		quartz.NewJobDetail(job.NewFunctionJob(cycle), quartz.NewJobKey("cycle")),
		quartz.NewSimpleTrigger(cfg.GetDuration("engine.interval")),
	)
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	var g errgroup.Group
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", &h)
	g.Go(func() error { return serve(ctx, cfg.GetString("health.addr"), healthMux) })

	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.Handler())
	g.Go(func() error { return serve(ctx, cfg.GetString("exporter.addr"), promMux) })

	if ocppServer != nil {
		g.Go(func() error { return serve(ctx, cfg.GetString("ocpp.addr"), ocppServer) })
	}

	<-ctx.Done()
	scheduler.Stop()
	scheduler.Wait(context.Background())
	err = g.Wait()
	logger.Info("powersync stopped")
	return err
}

func newLogger(cfg *viper.Viper) *slog.Logger {
	var level slog.Level
	if cfg.GetBool("debug") {
		level = slog.LevelDebug
	}
	var h slog.Handler
	if cfg.GetBool("log.json") {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func registerDevices(registry *device.Registry, owner *automation.Owner, chargers *ocpp.Server, requestMetrics metrics.RequestMetrics) error {
	cfg := owner.DeviceConfig

	switch cfg.Battery.Vendor {
	case "powerwall":
		registry.RegisterBattery(owner.ID, powerwall.New(cfg.Battery.BaseURL, cfg.Battery.SiteID, cfg.Battery.Token, requestMetrics))
	case "sigenergy":
		c, err := sigenergy.New(cfg.Battery.Host, cfg.Battery.Port, cfg.Battery.UnitID, modbusTimeout)
		if err != nil {
			return fmt.Errorf("sigenergy: %w", err)
		}
		registry.RegisterBattery(owner.ID, c)
	case "":
	default:
		return fmt.Errorf("unknown battery vendor %q", cfg.Battery.Vendor)
	}

	if cfg.Inverter.Host != "" {
		c, err := fronius.New(cfg.Inverter.Host, cfg.Inverter.Port, cfg.Inverter.UnitID, cfg.Inverter.RatedPowerW, modbusTimeout)
		if err != nil {
			return fmt.Errorf("fronius: %w", err)
		}
		registry.RegisterInverter(owner.ID, c)
	}
	if cfg.EV.Token != "" {
		registry.RegisterEV(owner.ID, fleet.New(cfg.EV.BaseURL, cfg.EV.Token, requestMetrics))
	}
	if cfg.Prices.Token != "" {
		registry.RegisterPrices(owner.ID, amber.New(cfg.Prices.BaseURL, cfg.Prices.SiteID, cfg.Prices.Token, requestMetrics))
	}
	if cfg.Weather.APIKey != "" {
		registry.RegisterWeather(owner.ID, openweather.New("", cfg.Weather.APIKey, cfg.Weather.Latitude, cfg.Weather.Longitude, requestMetrics))
	}
	if cfg.Forecast.APIKey != "" {
		registry.RegisterForecast(owner.ID, solcast.New(cfg.Forecast.BaseURL, cfg.Forecast.ResourceID, cfg.Forecast.APIKey, requestMetrics))
	}
	if cfg.Charger.Enabled {
		if chargers == nil {
			return errors.New("charger configured but the ocpp server is disabled")
		}
		registry.RegisterCharger(owner.ID, chargers)
	}
	return nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	// buffered so the ListenAndServe goroutine can exit after Shutdown even
	// though nobody reads its ErrServerClosed
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
