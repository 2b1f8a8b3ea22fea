// Command spooltraced runs the occupation-lock service daemon: it wires the
// Redis lock store and the durable occupation store together, performs the
// startup reconciliation pass and serves operational endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fabworks/spooltrace/config"
	"github.com/fabworks/spooltrace/lockstore"
	"github.com/fabworks/spooltrace/metrics"
	"github.com/fabworks/spooltrace/occlock"
	"github.com/fabworks/spooltrace/occupation"
)

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "spooltraced",
		Short:         "Occupation-lock daemon for spool/union traceability",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "spooltraced.yaml", "path to configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "spooltraced:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	stdr.SetVerbosity(cfg.Logging.Verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).
		WithName("spooltraced").
		WithValues("instance", xid.New().String())

	safetyTTL, staleAfter, reconcileTimeout, err := cfg.Lock.Durations()
	if err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	occ, err := occupation.NewGormStore(db)
	if err != nil {
		return fmt.Errorf("occupation store: %w", err)
	}

	opts := []occlock.Option{
		occlock.WithLogger(logger.WithName("occlock")),
		occlock.WithKeyPrefix(cfg.Lock.KeyPrefix),
	}
	if safetyTTL > 0 {
		opts = append(opts, occlock.WithSafetyTTL(safetyTTL))
	}
	if staleAfter > 0 {
		opts = append(opts, occlock.WithStaleAfter(staleAfter))
	}
	if cfg.Lock.GuardedRelease {
		opts = append(opts, occlock.WithGuardedRelease())
	}
	if cfg.Lock.Tracing {
		opts = append(opts, occlock.WithTracing())
	}
	mgr := occlock.New(lockstore.NewRedis(client), occ, opts...)

	// Best-effort by design: an incomplete pass never blocks startup.
	rep := mgr.Reconcile(ctx, reconcileTimeout)
	logger.Info("startup reconcile done",
		"recreated", rep.Recreated,
		"skipped_existing", rep.SkippedExisting,
		"skipped_stale", rep.SkippedStale,
		"failed", rep.Failed)

	reg := metrics.NewRegistry()
	metrics.RegisterCoreMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
