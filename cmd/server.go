package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ziadkadry99/actiongate/internal/acl"
	"github.com/ziadkadry99/actiongate/internal/actions"
	"github.com/ziadkadry99/actiongate/internal/apitoken"
	"github.com/ziadkadry99/actiongate/internal/audit"
	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/config"
	"github.com/ziadkadry99/actiongate/internal/db"
	"github.com/ziadkadry99/actiongate/internal/events"
	"github.com/ziadkadry99/actiongate/internal/handlers"
	"github.com/ziadkadry99/actiongate/internal/idempotency"
	"github.com/ziadkadry99/actiongate/internal/metrics"
	"github.com/ziadkadry99/actiongate/internal/patch"
	"github.com/ziadkadry99/actiongate/internal/ratelimit"
	"github.com/ziadkadry99/actiongate/internal/router"
	"github.com/ziadkadry99/actiongate/internal/server"
	"github.com/ziadkadry99/actiongate/internal/service"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the actiongate callback server",
	Long:  `Starts the actiongate server: token issuance, redemption dispatch, audit API and the live outcome feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if serverPort > 0 {
			cfg.Port = serverPort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		// The SQLite database always backs audit entries and API
		// tokens; the backend choice only moves callback state.
		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		deps, err := buildBackend(cfg, database)
		if err != nil {
			return err
		}
		if deps.close != nil {
			defer deps.close()
		}

		// Metrics go to stdout in verbose mode; without a reader the
		// instruments are inert.
		meterProvider, err := buildMeterProvider()
		if err != nil {
			return fmt.Errorf("setting up metrics: %w", err)
		}
		defer meterProvider.Shutdown(context.Background())

		recorder, err := metrics.NewRecorder(meterProvider.Meter("actiongate"))
		if err != nil {
			return fmt.Errorf("creating metrics recorder: %w", err)
		}

		// Handler registry.
		registry := callback.NewRegistry()
		if err := callback.RegisterBundles(registry, handlers.Orders{}); err != nil {
			return fmt.Errorf("registering handlers: %w", err)
		}

		// Patchers.
		patchers := []patch.Patcher{patch.NewTeamsPatcher(), patch.NewWebhookPatcher()}
		if cfg.Slack.Token != "" {
			patchers = append(patchers, patch.NewSlackPatcher(cfg.Slack.Token))
		}

		auditStore := audit.NewStore(database)
		hub := events.NewHub()
		policy := acl.SharedPolicy{}

		rt := router.New(registry)
		rt.Limiter = deps.limiter
		rt.Policy = policy
		rt.Idem = deps.idem
		rt.Audit = auditStore
		rt.Metrics = recorder
		rt.Patch = patch.NewDispatcher(patchers...)

		svc := service.New(deps.store, rt, hub)

		issuer := actions.NewIssuer(deps.store, time.Duration(cfg.TTLSec)*time.Second)

		srv := server.New(server.Config{
			Port:     cfg.Port,
			AllowAll: cfg.DevMode,
			DevAuth:  cfg.DevMode,
		}, deps.store, svc, issuer, policy, apitoken.NewStore(database), auditStore, hub)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		if deps.purge != nil {
			go runPurgeLoop(ctx, deps.purge)
		}

		fmt.Fprintf(os.Stderr, "actiongate server v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Backend: %s\n", cfg.Backend)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", cfg.DatabasePath)
		fmt.Fprintf(os.Stderr, "  Handlers: %d\n", registry.Len())

		return srv.Start()
	},
}

// backendDeps bundles the storage-dependent collaborators.
type backendDeps struct {
	store   callback.Store
	limiter ratelimit.Limiter
	idem    idempotency.Manager
	purge   func(ctx context.Context) // nil when the backend expires state itself
	close   func()
}

func buildBackend(cfg *config.Config, database *db.DB) (*backendDeps, error) {
	window := time.Duration(cfg.RateLimit.WindowSec) * time.Second
	resultTTL := time.Duration(cfg.ResultTTLSec) * time.Second

	switch cfg.Backend {
	case config.BackendSQLite:
		store := callback.NewSQLiteStore(database)
		limiter := ratelimit.NewSQLiteLimiter(database, cfg.RateLimit.Limit, window)
		idem := idempotency.NewSQLiteManager(database, resultTTL)

		deps := &backendDeps{store: store, idem: idem}
		if cfg.RateLimit.Limit > 0 {
			deps.limiter = limiter
		}
		deps.purge = func(ctx context.Context) {
			if _, err := store.PurgeExpired(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "purging callbacks: %v\n", err)
			}
			if _, err := idem.PurgeExpired(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "purging reservations: %v\n", err)
			}
			if _, err := limiter.PurgeStale(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "purging rate limit windows: %v\n", err)
			}
		}
		return deps, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}

		deps := &backendDeps{
			store: callback.NewRedisStore(client),
			idem:  idempotency.NewRedisManager(client, resultTTL),
			close: func() { client.Close() },
		}
		if cfg.RateLimit.Limit > 0 {
			deps.limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Limit, window)
		}
		return deps, nil

	case config.BackendMemory:
		deps := &backendDeps{
			store: callback.NewMemoryStore(),
			idem:  idempotency.NewSQLiteManager(database, resultTTL),
		}
		if cfg.RateLimit.Limit > 0 {
			deps.limiter = ratelimit.NewBucketLimiter(cfg.RateLimit.Limit, window)
		}
		return deps, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func buildMeterProvider() (*sdkmetric.MeterProvider, error) {
	if !verbose {
		return sdkmetric.NewMeterProvider(), nil
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Minute))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

// runPurgeLoop deletes expired rows until the context is canceled.
func runPurgeLoop(ctx context.Context, purge func(ctx context.Context)) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge(ctx)
		}
	}
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
