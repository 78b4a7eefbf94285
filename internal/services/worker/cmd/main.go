package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectplant/etkc/internal/services/worker"
	"github.com/projectplant/etkc/internal/storage"
	"github.com/projectplant/etkc/pkg/mqttx"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host := env("MQTT_HOST", "localhost")
	port := envInt("MQTT_PORT", 1883)
	user := env("MQTT_USER", "guest")
	pass := env("MQTT_PASSWORD", "guest")
	clientID := fmt.Sprintf("ETKCWorker-%s", env("HOSTNAME", "local"))

	client, err := mqttx.Connect(ctx, mqttx.Config{
		Host: host, Port: port, User: user, Password: pass, ClientID: clientID,
	})
	if err != nil {
		log.Fatalf("MQTT connect failed: %v", err)
	}
	transport := mqttx.NewTransport(client)

	store, err := storage.OpenSQLite(env("ETKC_DB_PATH", "/app/data/etkc.db"))
	if err != nil {
		log.Fatalf("storage open failed: %v", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics, err := worker.NewMetrics(registry)
	if err != nil {
		log.Fatalf("metrics init: %v", err)
	}
	metricsAddr := env("METRICS_ADDR", ":2112")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	go runDailyRollup(ctx, store)

	w := worker.New(transport, store, worker.Options{
		Metrics: metrics,
		OnDisconnect: func(err error) {
			log.Printf("worker: transport disconnected: %v", err)
		},
	})

	log.Printf("ETKCWorker running. broker=%s:%d metrics=%s", host, port, metricsAddr)
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			log.Printf("ETKCWorker stopped: %v", ctx.Err())
			return
		}
		// Run already applied the reconnect backoff; go again.
		log.Printf("worker: restarting after transport error: %v", err)
	}
}

// runDailyRollup summarizes the previous UTC day shortly after midnight.
func runDailyRollup(ctx context.Context, store *storage.SQLiteStore) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24*time.Hour + 5*time.Minute)
		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		day := time.Now().UTC().Add(-24 * time.Hour)
		n, err := store.RollupDaily(ctx, day)
		if err != nil {
			log.Printf("rollup: %v", err)
			continue
		}
		log.Printf("rollup: day=%s plants=%d", day.Format("2006-01-02"), n)
	}
}
