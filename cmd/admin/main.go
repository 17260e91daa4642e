// Package main runs the back-office engine with its admin API, background
// sweeps, and Prometheus metrics endpoint.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"finflow"
	"finflow/admin"
	"finflow/batch"
	cbmemory "finflow/circuit/memory"
	"finflow/event"
	"finflow/gateway"
	idstore "finflow/idempotency/store"
	lkmemory "finflow/lock/memory"
	promexp "finflow/metrics/prometheus"
	"finflow/notify"
	stmemory "finflow/store/memory"
	"finflow/task"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "admin API listen address")
		metricsAddr = flag.String("metrics-addr", ":9090", "metrics listen address")
		successRate = flag.Int("gateway-success-rate", 95, "simulated gateway success percentage")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	m := promexp.New(promexp.Config{
		Namespace: "finflow",
		Registry:  registry,
	})

	store := stmemory.NewMemoryStore()
	bus := event.NewMemoryEventBus()
	cfg := finflow.ApplyOptions(finflow.WithGatewaySuccessRate(*successRate))

	engine := finflow.NewEngine(
		finflow.WithEngineConfig(cfg),
		finflow.WithEngineStore(store),
		finflow.WithEngineLocker(lkmemory.NewMemoryLocker(
			lkmemory.WithRetryInterval(cfg.LockRetryInterval),
		)),
		finflow.WithEngineBreaker(cbmemory.NewMemoryBreaker()),
		finflow.WithEngineEventBus(bus),
		finflow.WithEngineChecker(idstore.New(store)),
		finflow.WithEngineGateway(gateway.NewSimulator(
			gateway.WithSuccessRate(*successRate),
		)),
		finflow.WithEngineNotifier(notify.NewLogNotifier()),
		finflow.WithEngineMetrics(m),
	)

	tracker := batch.NewTracker(batch.WithTrackerMetrics(m))
	runner := batch.NewRunner(engine, tracker)

	sweeps := task.NewWorker(engine,
		task.WithRunner(runner),
		task.WithEventBus(bus),
		task.WithMetrics(m),
	)
	if err := sweeps.Start(context.Background()); err != nil {
		logger.Error("starting sweep worker", "error", err)
		os.Exit(1)
	}
	defer sweeps.Stop()

	seedDemoData(engine, logger)

	server := admin.NewServer(engine,
		admin.WithAddr(*addr),
		admin.WithServerTracker(tracker),
		admin.WithServerRunner(runner),
		admin.WithServerMetrics(m),
	)

	metricsServer := &http.Server{
		Addr:    *metricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		logger.Info("metrics listening", "addr", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	go func() {
		logger.Info("admin API listening", "addr", *addr)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("stopping admin server", "error", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("stopping metrics server", "error", err)
	}
}

// seedDemoData creates a few entities so the API has something to show.
func seedDemoData(engine *finflow.Engine, logger *slog.Logger) {
	ctx := context.Background()

	inv := finflow.NewInvoice("CUST-1001", "POL-2026-0001", decimal.NewFromInt(420), "EUR",
		time.Now().Add(30*24*time.Hour))
	if err := engine.CreateInvoice(ctx, inv); err != nil {
		logger.Warn("seeding invoice", "error", err)
		return
	}
	if _, err := engine.ActivateInvoice(ctx, inv.Number); err != nil {
		logger.Warn("activating invoice", "error", err)
	}

	p := finflow.NewPayment("CUST-1001", "POL-2026-0001", decimal.NewFromInt(420), "EUR",
		finflow.PaymentMethodCreditCard)
	p.InvoiceNumber = inv.Number
	if err := engine.CreatePayment(ctx, p); err != nil {
		logger.Warn("seeding payment", "error", err)
		return
	}

	card := gateway.Card{
		Number:      "4532015112830366",
		HolderName:  "Demo Customer",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 2,
	}
	if _, err := engine.ProcessPayment(ctx, p.Number, card); err != nil {
		logger.Warn("processing seeded payment", "error", err)
	}
	logger.Info("seeded demo data", "invoice", inv.Number, "payment", p.Number)
}
