// Command pulsebus launches the workflow event bus runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/quartzlab/pulsebus/internal/bridge"
	"github.com/quartzlab/pulsebus/internal/bus"
	"github.com/quartzlab/pulsebus/internal/config"
	"github.com/quartzlab/pulsebus/internal/observability"
	"github.com/quartzlab/pulsebus/internal/producer"
	pulsetelemetry "github.com/quartzlab/pulsebus/internal/telemetry"
	"github.com/quartzlab/pulsebus/lib/telemetry"
)

const (
	defaultConfigPath        = "config/pulsebus.yaml"
	loggerPrefix             = "pulsebus "
	collectorShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := log.New(os.Stdout, loggerPrefix, log.LstdFlags|log.Lmicroseconds)

	configPath := cfgPath
	if configPath == "" {
		configPath = defaultConfigPath
	}
	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, producer=%t", appCfg.Environment, appCfg.Producer.Enabled)

	observability.SetEnvironment(appCfg.Environment)
	observability.SetLogger(observability.NewStdLogger(logger, appCfg.Debug))

	_, telemetryShutdown, err := telemetry.Init(ctx, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	if appCfg.Telemetry.OTLPEndpoint != "" {
		logger.Printf("metrics exporting to %s", appCfg.Telemetry.OTLPEndpoint)
	}

	eventBus := bus.New(bus.Config{DefaultRetryBackoff: appCfg.Bus.DefaultRetryBackoff})
	eventBus.RegisterLoggingHandler()

	collector := pulsetelemetry.New(pulsetelemetry.Config{
		StateFile:      appCfg.Telemetry.StateFile,
		RollupFile:     appCfg.Telemetry.RollupFile,
		MaxHistory:     appCfg.Telemetry.MaxHistory,
		RollupInterval: appCfg.Telemetry.RollupInterval(),
	})
	if _, err := eventBus.SubscribeAll(collector.HandleEvent,
		bus.WithMaxConcurrent(appCfg.Telemetry.CollectorConcurrency),
		bus.WithDescription("telemetry collector")); err != nil {
		logger.Fatalf("wire telemetry collector: %v", err)
	}

	workflowBridge := bridge.New(eventBus, "workflow")

	var lifecycle conc.WaitGroup
	if appCfg.Producer.Enabled {
		synthetic := producer.New(workflowBridge, producer.Config{
			WorkflowsPerSecond: appCfg.Producer.WorkflowsPerSecond,
			Steps:              appCfg.Producer.Steps,
			FailEvery:          appCfg.Producer.FailEvery,
		})
		lifecycle.Go(func() {
			if err := synthetic.Run(ctx); err != nil {
				logger.Printf("producer stopped: %v", err)
			}
		})
		logger.Printf("synthetic producer running at %.2f workflows/s", appCfg.Producer.WorkflowsPerSecond)
	}

	logger.Print("pulsebus started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownStart := time.Now()
	lifecycle.Wait()

	collectorCtx, collectorCancel := context.WithTimeout(context.Background(), collectorShutdownTimeout)
	if err := collector.Shutdown(collectorCtx); err != nil {
		logger.Printf("collector shutdown: %v", err)
	}
	collectorCancel()

	eventBus.Close()

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	if err := telemetryShutdown(telemetryCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	telemetryCancel()

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
