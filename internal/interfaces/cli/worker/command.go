package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iscoin/purchase/internal/infrastructure/database"
	"github.com/iscoin/purchase/internal/infrastructure/metrics"
	"github.com/iscoin/purchase/internal/infrastructure/payment"
	"github.com/iscoin/purchase/internal/infrastructure/scheduler"
	"github.com/iscoin/purchase/internal/interfaces/cli/bootstrap"
	"github.com/iscoin/purchase/internal/shared/goroutine"
	"github.com/iscoin/purchase/internal/shared/version"
)

var (
	env         string
	configPath  string
	metricsAddr string
	once        bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the purchase reconciliation loop",
		Long: `Poll both chains for payments to active purchases every purchase.update_interval,
settle paid purchases and expire unpaid ones. Runs until interrupted.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "Address serving /metrics; empty disables it")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single reconciliation tick and exit")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	env = bootstrap.ResolveEnv(env)

	cfg, log, err := bootstrap.Init(env, configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	log.Infow("starting purchase worker", "environment", env, "version", version.String())

	redisClient, err := bootstrap.OpenRedis(cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	services, err := payment.NewPurchaseServiceManager(
		database.Get(),
		redisClient,
		cfg.Purchase,
		cfg.Rates.CacheTTL,
		payment.PurchaseClients{},
		metrics.NewPurchaseMetrics(registry),
		log,
	)
	if err != nil {
		return err
	}

	if once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Purchase.UpdateInterval)
		defer cancel()

		closed, err := services.ReconcilePurchases().Execute(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		log.Infow("reconciliation tick finished", "closed", closed)
		return nil
	}

	if metricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		goroutine.SafeGo(log, "metrics-server", func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server stopped", "error", err)
			}
		})
		defer metricsSrv.Close()
		log.Infow("serving metrics", "address", metricsAddr)
	}

	schedulerManager, err := scheduler.NewSchedulerManager(log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := schedulerManager.RegisterReconcileJob(
		services.ReconcilePurchases(),
		cfg.Purchase.UpdateInterval,
		cfg.Purchase.UpdateInterval,
	); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}
	schedulerManager.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Infow("received signal, shutting down", "signal", sig)
	if err := schedulerManager.Stop(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Infow("purchase worker stopped")
	return nil
}
