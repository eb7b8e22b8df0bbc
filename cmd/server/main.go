package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asakaida/sharing/internal/entities"
	"github.com/asakaida/sharing/internal/handlers"
	infracache "github.com/asakaida/sharing/internal/infrastructure/cache"
	"github.com/asakaida/sharing/internal/infrastructure/config"
	"github.com/asakaida/sharing/internal/infrastructure/database"
	"github.com/asakaida/sharing/internal/infrastructure/metrics"
	"github.com/asakaida/sharing/internal/repositories"
	"github.com/asakaida/sharing/internal/repositories/memory"
	"github.com/asakaida/sharing/internal/repositories/postgres"
	"github.com/asakaida/sharing/internal/services"
	"github.com/asakaida/sharing/internal/services/authorization"
	"github.com/asakaida/sharing/internal/services/registry"
	"github.com/asakaida/sharing/pkg/cache"
	"github.com/asakaida/sharing/pkg/cache/memorycache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const (
	defaultEnv             = "dev"
	metricsUpdateInterval  = 10 * time.Second
	gracefulShutdownPeriod = 30 * time.Second
)

// store bundles the backend-specific pieces selected by STORE_DRIVER
type store struct {
	shares     repositories.ShareRepository
	identities repositories.IdentityRepository
	revisions  cache.RevisionSource
	close      func()
}

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open share store: %v", err)
	}
	defer st.close()

	// Object existence checks used by grant creation and orphan pruning
	objects := registry.New()
	if err := objects.Register(entities.UserKind, st.identities.UserExists); err != nil {
		log.Fatalf("Failed to register user kind: %v", err)
	}

	shareService := services.NewShareService(st.shares, objects, st.revisions)

	collector := metrics.NewCollector()
	var exporter *metrics.PrometheusExporter
	if cfg.Server.MetricsPort > 0 {
		exporter = metrics.NewPrometheusExporter(collector)
	}

	var authority *authorization.Authority
	if cfg.Cache.Enabled {
		decisionCache, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    cfg.Cache.TTL(),
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			log.Fatalf("Failed to create decision cache: %v", err)
		}
		defer decisionCache.Close()

		collector.SetCache(decisionCache)
		authority = authorization.NewAuthorityWithCache(st.shares, decisionCache, st.revisions, cfg.Cache.TTL())
		log.Printf("Decision cache enabled: max %d bytes, TTL %s", cfg.Cache.MaxMemoryBytes, cfg.Cache.TTL())
	} else {
		authority = authorization.NewAuthority(st.shares)
	}
	authority.SetDecisionRecorder(metrics.NewDecisionRecorder(collector, exporter))

	sharingHandler := handlers.NewSharingHandler(authority, shareService, st.identities)

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)),
	)
	handlers.RegisterSharingServiceServer(grpcServer, sharingHandler)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	log.Printf("gRPC server listening on %s:%d (store: %s)", cfg.Server.Host, cfg.Server.Port, cfg.Store.Driver)

	serverErrors := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	var metricsServer *http.Server
	if exporter != nil {
		metricsServer = startMetricsServer(ctx, cfg.Server.MetricsPort, exporter, serverErrors)
	}

	if interval := cfg.Server.PruneInterval(); interval > 0 {
		go runPruner(ctx, shareService, interval)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	}

	log.Println("Initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping metrics server: %v", err)
		}
	}

	// Channel to notify when graceful stop completes
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	// Wait for graceful stop or timeout
	select {
	case <-stopped:
		log.Println("Server stopped gracefully")
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	log.Println("Shutdown complete")
}

// openStore connects the configured share store backend
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Println("Using in-memory share store; grants are lost on restart")
		return &store{
			shares:     memory.NewShareRepository(),
			identities: memory.NewIdentityRepository(),
			revisions:  infracache.NewLocalRevision(),
			close:      func() {},
		}, nil
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return nil, err
	}

	log.Printf("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)

	revisions := infracache.NewRevisionManager(pg.DB, cfg.Database.ConnectionString(), cfg.Cache.RevisionRefresh())
	if err := revisions.Start(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to start revision manager: %w", err)
	}

	return &store{
		shares:     postgres.NewPostgresShareRepository(pg.DB),
		identities: postgres.NewPostgresIdentityRepository(pg.DB),
		revisions:  revisions,
		close: func() {
			if err := revisions.Stop(); err != nil {
				log.Printf("Error stopping revision manager: %v", err)
			}
			if err := pg.Close(); err != nil {
				log.Printf("Error closing database connection: %v", err)
			}
		},
	}, nil
}

// startMetricsServer serves /metrics and refreshes cache gauges periodically
func startMetricsServer(ctx context.Context, port int, exporter *metrics.PrometheusExporter, serverErrors chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Metrics server listening on :%d", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				exporter.Update()
			}
		}
	}()

	return srv
}

// runPruner removes grants of deleted objects until ctx is cancelled
func runPruner(ctx context.Context, shares *services.ShareService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := shares.PruneOrphans(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Failed to prune orphan grants: %v", err)
				}
				continue
			}
			if pruned > 0 {
				log.Printf("Pruned %d orphan grant(s)", pruned)
			}
		}
	}
}
