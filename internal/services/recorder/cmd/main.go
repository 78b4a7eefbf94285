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

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/projectplant/etkc/internal/services/recorder"
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

	client, err := mqttx.Connect(ctx, mqttx.Config{
		Host:     env("MQTT_HOST", "localhost"),
		Port:     envInt("MQTT_PORT", 1883),
		User:     env("MQTT_USER", "guest"),
		Password: env("MQTT_PASSWORD", "guest"),
		ClientID: fmt.Sprintf("ETKCRecorder-%s", env("HOSTNAME", "local")),
	})
	if err != nil {
		log.Fatalf("MQTT connect failed: %v", err)
	}
	transport := mqttx.NewTransport(client)

	influx := influxdb2.NewClient(env("INFLUX_URL", "http://localhost:8086"), os.Getenv("INFLUX_TOKEN"))
	defer influx.Close()
	writeAPI := influx.WriteAPIBlocking(env("INFLUX_ORG", "projectplant"), env("INFLUX_BUCKET", "etkc"))

	rec := recorder.New(transport, writeAPI)

	httpPort := envInt("HTTP_PORT", 8081)
	mux := http.NewServeMux()
	mux.Handle("/healthz", rec.HealthHandler())
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(httpPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("recorder: HTTP listening on :%d", httpPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	log.Printf("recorder: consuming %s", recorder.MetricsFilter)
	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("recorder: stopped: %v", err)
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
