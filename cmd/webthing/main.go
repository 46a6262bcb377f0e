// WebThing Gateway
//
// This is the main entry point for the gateway. It serves the Things
// declared in config.yaml over the Web Thing REST and WebSocket API and,
// depending on configuration:
//   - Bridges property writes, actions and device reports over MQTT
//   - Restores and persists property values in SQLite
//   - Writes property, action and event history to InfluxDB
//   - Advertises itself over mDNS as _webthing._tcp
//   - Exposes the Things as MCP tools on stdio
//
// Usage:
//
//	webthing                         serve (config from WEBTHING_CONFIG)
//	webthing token [subject] [role]  print a signed API token
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/webthing-gateway/migrations"

	"github.com/nerrad567/webthing-gateway/internal/api"
	"github.com/nerrad567/webthing-gateway/internal/auth"
	"github.com/nerrad567/webthing-gateway/internal/bridge"
	"github.com/nerrad567/webthing-gateway/internal/catalog"
	"github.com/nerrad567/webthing-gateway/internal/discovery"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/config"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/database"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/webthing-gateway/internal/mcpserver"
	"github.com/nerrad567/webthing-gateway/internal/snapshot"
	"github.com/nerrad567/webthing-gateway/internal/telemetry"
	"github.com/nerrad567/webthing-gateway/internal/thing"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = runToken(os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting WebThing Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	// Snapshot store (optional)
	var db *database.DB
	var store *snapshot.Store
	if cfg.Database.Enabled {
		db, err = database.Open(database.FromConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		store = snapshot.NewStore(db.DB)
		log.Info("database ready", "path", cfg.Database.Path)
	} else {
		log.Info("database disabled, property values reset on restart")
	}

	// Device bridge (optional). Without it writes are accepted locally.
	var binder catalog.Binder = catalog.LocalBinder{}
	var mqttClient *mqtt.Client
	var deviceBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		deviceBridge, err = bridge.New(bridge.Options{
			MQTT:   mqttClient,
			Topics: mqttClient.Topics(),
			QoS:    byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0-2
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("creating device bridge: %w", err)
		}
		binder = deviceBridge
	} else {
		log.Info("MQTT disabled, Things run standalone")
	}

	things, err := catalog.Build(cfg.Things, binder, log)
	if err != nil {
		return fmt.Errorf("building things: %w", err)
	}

	if store != nil {
		recorder := snapshot.NewRecorder(store, log)
		for _, t := range things {
			n, restoreErr := store.Restore(ctx, t)
			if restoreErr != nil {
				return fmt.Errorf("restoring %s: %w", t.ID(), restoreErr)
			}
			log.Info("property snapshot restored", "thing", t.ID(), "properties", n)
			t.AddListener(recorder)
		}
		recorder.Start(ctx)
		defer recorder.Stop()
	}

	if deviceBridge != nil {
		for _, t := range things {
			deviceBridge.Attach(t)
		}
		if startErr := deviceBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting device bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping device bridge")
			deviceBridge.Stop()
		}()
	}

	// History (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history := telemetry.NewRecorder(influxClient)
		for _, t := range things {
			t.AddListener(history)
		}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Things:   things,
		Multiple: cfg.Gateway.Multiple,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if db != nil {
		deps.DB = db
	}
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Discovery.Enabled {
		adv, advErr := discovery.Start(discovery.Options{
			Instance: discoveryInstance(cfg, things),
			Service:  cfg.Discovery.Service,
			Port:     srv.Port(),
			TLS:      cfg.API.TLS.Enabled,
		})
		if advErr != nil {
			log.Warn("mDNS advertisement failed, continuing without discovery", "error", advErr)
		} else {
			defer func() {
				if stopErr := adv.Stop(); stopErr != nil {
					log.Error("error stopping mDNS", "error", stopErr)
				}
			}()
			log.Info("mDNS advertisement started",
				"instance", adv.Service().Instance,
				"service", adv.Service().Service,
			)
		}
	}

	if cfg.MCP.Enabled {
		tools := mcpserver.New(cfg.Gateway.Name, version, things, log)
		go func() {
			if serveErr := tools.Serve(ctx, os.Stdin, os.Stdout); serveErr != nil {
				log.Error("MCP server error", "error", serveErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("WebThing Gateway stopped")
	return nil
}

// runToken prints a signed API token.
//
// Usage: token [subject] [role]. Subject defaults to "admin" and role to
// operator.
func runToken(args []string, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not set; authentication is disabled")
	}

	subject, role := "admin", auth.RoleOperator
	if len(args) > 0 {
		subject = args[0]
	}
	if len(args) > 1 {
		if role, err = auth.ParseRole(args[1]); err != nil {
			return fmt.Errorf("role %q: %w", args[1], err)
		}
	}

	ttl := time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateToken(subject, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token) //nolint:errcheck // best-effort CLI output
	return nil
}

// discoveryInstance names the mDNS service: the configured instance, the
// Thing title when serving one Thing, otherwise the gateway name.
func discoveryInstance(cfg *config.Config, things []*thing.Thing) string {
	if cfg.Discovery.Instance != "" {
		return cfg.Discovery.Instance
	}
	if !cfg.Gateway.Multiple && len(things) == 1 {
		return things[0].Title()
	}
	return cfg.Gateway.Name
}

func getConfigPath() string {
	if path := os.Getenv("WEBTHING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
