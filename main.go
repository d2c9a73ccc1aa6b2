package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/smsgw/events"
	"i4.energy/across/smsgw/listener"
	"i4.energy/across/smsgw/modem"
	"i4.energy/across/smsgw/receiver"
	"i4.energy/across/smsgw/sms"
	"i4.energy/across/smsgw/store"
	"i4.energy/across/smsgw/webhook"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.String("database-path", "sms-gateway.db", "Path to the SQLite database file")
	flag.Bool("gnss-enabled", false, "Enable GNSS position reporting")
	flag.Bool("listener-enabled", false, "Enable the /events WebSocket live-listener endpoint")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if len(config.EncryptionKey) != 32 {
		logger.Error("ENCRYPTION_KEY must decode to exactly 32 bytes", "got_bytes", len(config.EncryptionKey))
		os.Exit(1)
	}
	encryptor, err := store.NewEncryptor(config.EncryptionKey)
	if err != nil {
		logger.Error("Failed to build encryptor", "error", err)
		os.Exit(1)
	}

	db, err := store.OpenSQLiteStore(config.DatabasePath, encryptor)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var sinks []events.Sink

	var hub *listener.Hub
	if config.ListenerEnabled {
		hub = listener.NewHub(logger.With("component", "listener"))
		sinks = append(sinks, hub)
	}

	if len(config.WebhookURLs) > 0 {
		targets := make([]webhook.Target, 0, len(config.WebhookURLs))
		for _, url := range config.WebhookURLs {
			targets = append(targets, webhook.Target{URL: url, Events: events.AllKinds})
		}
		webhookWorker, err := webhook.NewWorker(webhook.WorkerConfig{
			Targets: targets,
			Logger:  logger.With("component", "webhook"),
		})
		if err != nil {
			logger.Error("Failed to build webhook worker", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, webhookWorker)

		webhookCtx, cancelWebhook := context.WithCancel(context.Background())
		defer cancelWebhook()
		go webhookWorker.Run(webhookCtx)
	}

	broadcaster := events.NewBroadcaster(logger.With("component", "broadcaster"), sinks...)

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithMaxRetries(5).
		WithMinSendInterval(10 * time.Second).
		WithSimPIN(config.SimPIN).
		WithGNSS(config.GNSSEnabled, config.GNSSReportInterval).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			Mode:     &serial.Mode{BaudRate: config.BaudRate},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := m.Loop(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Modem loop exited", "error", err)
		}
	}()

	assembler := sms.NewMultipartAssembler(logger.With("component", "multipart"))
	stopCleanup := make(chan struct{})
	go assembler.RunCleanup(10*time.Minute, 30*time.Minute, stopCleanup)
	defer close(stopCleanup)

	rcv := receiver.New(assembler, db, broadcaster, logger.With("component", "receiver"))
	go rcv.Run(ctx, m.Incoming())

	logger.Info("Starting SMS Gateway")

	server := &Server{
		Logger: logger.With("component", "server"),
		Modem:  m,
		Store:  db,
		Hub:    hub,
	}

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: server.Router(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
