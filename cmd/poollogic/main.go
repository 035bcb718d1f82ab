// Pool Logic Core - pool controller integration service
//
// This is the main entry point for the Pool Logic Core application. It
// connects to a pool equipment hub over its local TCP command port,
// discovers the installed hardware, maintains a live entity graph, and
// exposes the result over MQTT, InfluxDB, and an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/pool-logic-core/internal/api"
	"github.com/nerrad567/pool-logic-core/internal/engine"
	"github.com/nerrad567/pool-logic-core/internal/hub"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/pool-logic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pool-logic-core/internal/resilience"
	"github.com/nerrad567/pool-logic-core/internal/statuspub"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Pool Logic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to the hub. The connect path runs behind a circuit breaker
	// so a dead controller trips fast instead of hammering the network.
	hubClient, err := connectHub(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connecting to hub: %w", err)
	}
	defer func() {
		log.Info("closing hub connection")
		if closeErr := hubClient.Close(); closeErr != nil {
			log.Error("error closing hub connection", "error", closeErr)
		}
	}()
	log.Info("hub connected", "host", cfg.Hub.Host, "port", cfg.Hub.Port)

	// Build the integration session on top of the transport.
	session := engine.NewSession(hubClient, engine.Config{
		IncludeAllCircuits:           cfg.Engine.IncludeAllCircuits,
		SupportVariableSpeedPumps:    cfg.Engine.SupportVariableSpeedPumps,
		DiscoveryPacing:              cfg.Engine.DiscoveryPacing(),
		DiscoveryTimeout:             cfg.Engine.DiscoveryTimeout(),
		ParseErrorWarnThreshold:      cfg.Engine.ParseErrorWarnThreshold,
		ParseErrorReconnectThreshold: cfg.Engine.ParseErrorReconnectThreshold,
		ParseErrorWindow:             cfg.Engine.ParseErrorWindow(),
		RateLimit: resilience.RateLimiterConfig{
			Capacity: cfg.Resilience.RateLimit.Capacity,
			Window:   time.Duration(cfg.Resilience.RateLimit.WindowMillis) * time.Millisecond,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:   cfg.Resilience.Retry.MaxAttempts,
			BaseDelay:     time.Duration(cfg.Resilience.Retry.BaseDelayMillis) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.Resilience.Retry.MaxDelayMillis) * time.Millisecond,
			BackoffFactor: cfg.Resilience.Retry.BackoffFactor,
		},
		DeadLetter: resilience.DeadLetterConfig{
			MaxEntries: cfg.Resilience.DeadLetter.MaxEntries,
			MaxAge:     time.Duration(cfg.Resilience.DeadLetter.MaxAgeSeconds) * time.Second,
		},
	}, log.With("component", "engine"))

	var notifiers notifierGroup

	// Connect to MQTT broker (optional)
	var publisher *statuspub.Publisher
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
			"client_id", cfg.MQTT.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		// Connect to InfluxDB (optional, only useful alongside MQTT)
		var store statuspub.TelemetryStore
		if cfg.InfluxDB.Enabled {
			influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
			if influxErr != nil {
				return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
			}
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)

			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			store = influxClient
		} else {
			log.Info("InfluxDB disabled")
		}

		publisher = statuspub.New(session, mqttClient, store, log.With("component", "statuspub"))
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	} else {
		log.Info("MQTT disabled, status publishing off")
	}

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.With("component", "api"),
			Controller: session,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
		notifiers = append(notifiers, server)
	} else {
		log.Info("API server disabled")
	}

	if len(notifiers) > 0 {
		session.SetNotifier(notifiers)
	}

	// Initial discovery. Later cycles can be triggered over the API.
	discoverCtx, discoverCancel := context.WithTimeout(ctx, cfg.Engine.DiscoveryTimeout())
	err = session.Discover(discoverCtx)
	discoverCancel()
	if err != nil {
		return fmt.Errorf("initial discovery: %w", err)
	}
	counts := map[string]int{}
	for kind, ids := range session.EntityIDs() {
		counts[kind] = len(ids)
	}
	log.Info("discovery complete", "entities", fmt.Sprintf("%v", counts))

	// Seed the retained state topics with the full picture.
	if publisher != nil {
		publisher.PublishAll()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Status publisher
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Hub connection

	log.Info("Pool Logic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses POOLLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("POOLLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectHub dials the hub through a circuit breaker, retrying until the
// context is cancelled. The breaker spaces out attempts once the
// controller looks dead; hubs reboot slowly after power cycles.
func connectHub(ctx context.Context, cfg *config.Config, log *logging.Logger) (*hub.Client, error) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Resilience.Breaker.SuccessThreshold,
		ResetTimeout:     time.Duration(cfg.Resilience.Breaker.ResetTimeoutSeconds) * time.Second,
	})

	hubCfg := hub.Config{
		Host:                 cfg.Hub.Host,
		Port:                 cfg.Hub.Port,
		Username:             cfg.Hub.Username,
		Password:             cfg.Hub.Password,
		ConnectTimeout:       cfg.Hub.ConnectTimeout(),
		HeartbeatInterval:    cfg.Hub.HeartbeatInterval(),
		SilenceThreshold:     cfg.Hub.SilenceThreshold(),
		ReconnectCooldown:    cfg.Hub.ReconnectCooldown(),
		MinReconnectInterval: cfg.Hub.MinReconnectInterval(),
		MaxBufferBytes:       cfg.Hub.MaxBufferBytes,
	}

	var client *hub.Client
	for {
		err := breaker.Do(ctx, func(ctx context.Context) error {
			var connectErr error
			client, connectErr = hub.Connect(ctx, hubCfg)
			return connectErr
		})
		if err == nil {
			client.SetLogger(log.With("component", "hub"))
			return client, nil
		}

		log.Warn("hub connection attempt failed", "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", err, ctx.Err())
		case <-time.After(cfg.Hub.ReconnectCooldown()):
		}
	}
}

// notifierGroup fans one entity change event out to every consumer.
type notifierGroup []engine.Notifier

// EntityUpdated implements engine.Notifier.
func (g notifierGroup) EntityUpdated(kind, id string) {
	for _, n := range g {
		n.EntityUpdated(kind, id)
	}
}
