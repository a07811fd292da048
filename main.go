package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"heartify/auth"
	"heartify/config"
	"heartify/db"
	hhttp "heartify/http"
	"heartify/logging"
	"heartify/monitoring"
	"heartify/predictor"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.DefaultSecret() {
		logger.Warn("auth.jwt_secret is the built-in default; set JWT_SECRET before exposing the service")
	}

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. Prediction pipeline
	predMetrics := predictor.NewMetrics(reg)
	source, err := predictor.NewSource(cfg.Artifacts, logger, predMetrics)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	pred := predictor.New(source, logger, predMetrics)
	defer pred.Close()
	logger.Info("prediction pipeline ready",
		zap.String("model", cfg.Artifacts.ModelPath),
		zap.String("encoder", cfg.Artifacts.EncoderPath),
		zap.String("reload", cfg.Artifacts.Reload),
	)

	// 4. Heart-rate monitor
	monitorMetrics := monitoring.NewMetrics(reg)
	hub := monitoring.NewWebSocketHub(logger, monitorMetrics, originChecker(cfg.HTTP.AllowedOrigins))
	go hub.Start()
	defer hub.Stop()

	heartRate, err := monitoring.NewHeartRateService(hub, cfg.Monitor.LatestCacheSize, time.Local, logger, monitorMetrics)
	if err != nil {
		return fmt.Errorf("init heart-rate service: %w", err)
	}

	alerts := monitoring.NewAlertManager(monitoring.AlertConfig{
		HighBPM:  cfg.Monitor.AlertHighBPM,
		LowBPM:   cfg.Monitor.AlertLowBPM,
		Cooldown: cfg.Monitor.AlertCooldown,
		Webhook:  cfg.Monitor.AlertWebhook,
	}, hub, logger)
	if alerts.Enabled() {
		heartRate.SetAlerts(alerts)
		defer alerts.Wait()
	}

	if cfg.Monitor.RetentionDays > 0 {
		retention, err := monitoring.NewRetention(heartRate, cfg.Monitor.RetentionDays, cfg.Monitor.RetentionSchedule, time.Local, logger)
		if err != nil {
			return fmt.Errorf("init retention: %w", err)
		}
		retention.Start()
		defer retention.Stop()
	}

	if cfg.MQTT.Broker != "" {
		ingest := monitoring.NewMQTTIngest(cfg.MQTT, heartRate, logger)
		if err := ingest.Start(10 * time.Second); err != nil {
			// paho keeps retrying in the background
			logger.Warn("mqtt broker not reachable yet", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer ingest.Stop()
	}

	// 5. Start HTTP server
	server := hhttp.NewServer(cfg.HTTP, cfg.Addr(), hhttp.Deps{
		Predictor: pred,
		HeartRate: heartRate,
		Hub:       hub,
		Tokens:    auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Auth:      cfg.Auth,
		Registry:  reg,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
	return nil
}

// originChecker accepts websocket upgrades from the same origins the CORS
// layer allows.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
