// FilePath: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsatony/sensorhub/api"
	"github.com/itsatony/sensorhub/internal/cleanup"
	"github.com/itsatony/sensorhub/internal/config"
	"github.com/itsatony/sensorhub/internal/database"
	"github.com/itsatony/sensorhub/internal/hubservice"
	"github.com/itsatony/sensorhub/internal/ingest"
	"github.com/itsatony/sensorhub/internal/monitoring"
	"github.com/itsatony/sensorhub/internal/repository"
	"github.com/itsatony/sensorhub/internal/repository/mongodb"
	"github.com/itsatony/sensorhub/internal/repository/postgres"
	"github.com/itsatony/sensorhub/internal/repository/rediscache"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
	"go.mongodb.org/mongo-driver/mongo"
)

const bootstrapTimeout = 30 * time.Second

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	hubservice *hubservice.HubService
	monitoring *monitoring.Service
	ingestor   *ingest.Ingestor

	identityDB  database.DB
	mongoClient *mongo.Client
	redisClient *redis.Client

	cancelBackground context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config: cfg,
		srv:    srv,
	}
}

// Start connects the stores, starts background work and begins listening for requests
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	if err := s.initializeHubService(ctx); err != nil {
		s.closeStores()
		return err
	}

	// Set up cleanup event handlers
	if err := s.setupCleanupHandlers(); err != nil {
		s.closeStores()
		return err
	}

	// Setup routes
	s.srv.Handler = api.NewRouter(s.hubservice, api.RouterConfig{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		MetricsPath:    s.monitoring.MetricsPath(),
		Health:         s.handleHealth(),
		Metrics:        s.monitoring.Handler(),
	})

	bg, cancelBackground := context.WithCancel(context.Background())
	s.cancelBackground = cancelBackground
	go s.hubservice.Cleanup.Run(bg, s.config.Cleanup.Interval)

	if s.config.MQTT.Enabled {
		s.ingestor = ingest.New(s.config.MQTT, s.hubservice)
		if err := s.ingestor.Start(bg); err != nil {
			cancelBackground()
			s.closeStores()
			return err
		}
	}

	// Start server
	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	if s.ingestor != nil {
		s.ingestor.Stop()
	}
	s.cancelBackground()
	s.closeStores()

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

// handleHealth reports the reachability of every store
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stores, healthy := s.hubservice.Health(ctx)
		status, code := "ok", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  status,
			"version": nuts.GetVersion(),
			"stores":  stores,
		})
	}
}

func (s *Server) setupCleanupHandlers() error {
	handlers := map[string]func(id string){
		// Handle sensor deletion events
		cleanup.EventSensorDeleted: func(id string) {
			nuts.L.Infof("[Cleanup] Sensor %s and all associated data deleted", id)
			s.monitoring.RecordEvent("sensor_deletion", map[string]string{"sensor_id": id})
		},
		// Handle orphan identity removal
		cleanup.EventSensorOrphanRemoved: func(id string) {
			nuts.L.Infof("[Cleanup] Orphan identity %s removed", id)
			s.monitoring.RecordEvent("orphan_identity_removed", map[string]string{"sensor_id": id})
		},
		// Handle orphan metadata removal
		cleanup.EventMetadataOrphanRemoved: func(name string) {
			nuts.L.Infof("[Cleanup] Orphan metadata %s removed", name)
			s.monitoring.RecordEvent("orphan_metadata_removed", map[string]string{"name": name})
		},
	}
	for event, handler := range handlers {
		if err := s.hubservice.Cleanup.OnCleanup(event, handler); err != nil {
			return err
		}
	}
	return nil
}

// initializeHubService connects every store and creates the hub service
func (s *Server) initializeHubService(ctx context.Context) error {
	var err error

	s.identityDB, err = database.NewIdentityDB(s.config.Identity)
	if err != nil {
		return err
	}
	if err := s.identityDB.Ping(ctx); err != nil {
		return fmt.Errorf("error pinging identity store: %w", err)
	}
	identity := postgres.NewIdentityRepository(s.identityDB)
	if err := identity.EnsureSchema(ctx); err != nil {
		return err
	}

	s.mongoClient, err = database.NewMongoClient(ctx, s.config.Mongo)
	if err != nil {
		return err
	}
	metadata := mongodb.NewMetadataRepository(database.MongoCollection(s.mongoClient, s.config.Mongo))
	if err := metadata.EnsureIndexes(ctx); err != nil {
		return err
	}

	s.redisClient, err = database.NewRedisClient(ctx, s.config.Redis)
	if err != nil {
		return err
	}
	telemetry := rediscache.NewTelemetryRepository(s.redisClient, s.config.Redis.TelemetryTTL)

	s.monitoring = monitoring.NewService(monitoring.Config{
		MetricsPath: s.config.Monitoring.MetricsPath,
	})

	s.hubservice = hubservice.New(identity, metadata, telemetry, s.monitoring, repositoryOptions(s.config.Repository), s.config.Cleanup.GracePeriod)
	return s.hubservice.Validate()
}

func repositoryOptions(cfg config.RepositoryConfig) repository.Options {
	return repository.Options{
		Concurrency:      cfg.Concurrency,
		StoreTimeout:     cfg.StoreTimeout,
		HydrationTimeout: cfg.HydrationTimeout,
		MaxTelemetryAge:  cfg.MaxTelemetryAge,
		RequireIdentity:  cfg.RequireIdentity,
		CascadeDelete:    cfg.CascadeDelete,
	}
}

func (s *Server) closeStores() {
	if s.identityDB != nil {
		if err := s.identityDB.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing identity store: %v", err)
		}
	}
	if s.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			nuts.L.Warnf("[Server] Error disconnecting MongoDB: %v", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			nuts.L.Warnf("[Server] Error closing Redis: %v", err)
		}
	}
}
