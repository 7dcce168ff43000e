// Package main implements the mesh gateway entry point: it wires the port
// locator, device session, dispatch queue, and HTTP API together and runs
// them until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mesh-gateway/meshgw/internal/api"
	"github.com/mesh-gateway/meshgw/internal/audit"
	"github.com/mesh-gateway/meshgw/internal/auth"
	"github.com/mesh-gateway/meshgw/internal/config"
	"github.com/mesh-gateway/meshgw/internal/device"
	"github.com/mesh-gateway/meshgw/internal/dispatch"
	"github.com/mesh-gateway/meshgw/internal/gateway"
	"github.com/mesh-gateway/meshgw/internal/locator"
	"github.com/mesh-gateway/meshgw/internal/logging"
	"github.com/mesh-gateway/meshgw/internal/telemetry"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "meshgw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if flag.Arg(0) == "ports" {
		return listPorts()
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("starting mesh gateway", "version", version)

	auditLogger := audit.Open(cfg.Logging)
	defer auditLogger.Close()

	var sink telemetry.Sink
	var mqttSink *telemetry.MQTTSink
	if cfg.Telemetry.MQTT.Enabled {
		mqttSink, err = telemetry.NewMQTTSink(cfg.Telemetry.MQTT, logger)
		if err != nil {
			return fmt.Errorf("failed to connect MQTT mirror: %w", err)
		}
		defer mqttSink.Close()
		sink = mqttSink
		logger.Info("telemetry MQTT mirror connected", "broker", cfg.Telemetry.MQTT.Broker)
	}

	hub := telemetry.NewHub(cfg.Telemetry.BufferSize, cfg.Telemetry.HeartbeatInterval(), sink, logger)
	defer hub.Stop()

	pinned := cfg.Device.Endpoint
	if pinned == config.AutoEndpoint {
		pinned = ""
	}
	loc := locator.New(pinned, nil)

	session := device.NewSession(device.SerialOpener{}, cfg.Device.BaudRate,
		cfg.Device.OpenTimeout(), cfg.Device.TransmitTimeout(), logger)

	recorder := telemetry.NewRecorder(hub, auditLogger)
	queue := dispatch.NewQueue(session, loc, recorder, logger)

	gw := gateway.New(queue, logger)

	var middleware *auth.Middleware
	if cfg.Auth.Enabled() {
		middleware = auth.NewMiddleware(cfg.Auth.Secret)
		logger.Info("bearer-token authentication enabled")
	}

	server := api.NewServer(cfg.Server, gw, session, queue, loc, hub, middleware, logger)
	server.Version = version

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	// Shutdown order: stop accepting HTTP first, then drain the queue
	// (resolving pending entries), then release the device.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error("error stopping HTTP server", "error", err)
	}
	if err := queue.Close(); err != nil {
		logger.Error("error closing dispatch queue", "error", err)
	}
	hub.Stop()

	logger.Info("mesh gateway shutdown complete")
	return nil
}

// listPorts prints all serial port candidates and exits; the radio rows are
// marked so an operator can pin device.endpoint without trial and error.
func listPorts() error {
	ports, err := locator.New("", nil).Scan(context.Background())
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		mark := " "
		if p.Match {
			mark = "*"
		}
		detail := ""
		if p.IsUSB {
			detail = fmt.Sprintf("  [%s:%s] %s", p.VID, p.PID, p.Product)
		}
		fmt.Printf("%s %s%s\n", mark, p.Name, detail)
	}
	return nil
}
