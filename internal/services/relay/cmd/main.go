package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/digitaltwins"
	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/services/relay"
	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/broker"
	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/dedup"
)

func main() {
	cfg, err := loadConfig()
	log := newLogger(cfg.LogLevel)
	if err != nil {
		log.Error("config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(reg)

	// ---- Digital Twins ----
	cred, err := digitaltwins.NewDefaultCredential()
	if err != nil {
		log.Error("azure credential", "error", err)
		os.Exit(1)
	}
	twins := digitaltwins.NewClient(digitaltwins.Config{
		Endpoint:        cfg.TwinsURL,
		APIVersion:      cfg.APIVersion,
		Timeout:         ms(cfg.TimeoutMs),
		BreakerFailures: cfg.CBFails,
		BreakerOpenFor:  ms(cfg.CBOpenMs),
		BreakerInterval: ms(cfg.CBIntervalMs),
		OnStateChange: func(from, to gobreaker.State) {
			log.Warn("twins breaker state change", "from", from.String(), "to", to.String())
		},
	}, cred)

	// ---- Sinks (opzionali) ----
	var sinks []relay.Sink

	var writer *relay.Writer
	if cfg.Influx.URL != "" {
		opts := influxdb2.DefaultOptions().
			SetBatchSize(uint(cfg.Influx.BatchSize)).
			SetFlushInterval(uint(cfg.Influx.FlushIntervalMs))
		ic := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
		wapi := ic.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket)
		defer ic.Close()
		defer wapi.Flush()
		writer = relay.NewWriter(wapi, log)
		sinks = append(sinks, writer)
		log.Info("influx history enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	}

	var lastValues *relay.LastValueStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn("redis not reachable, last values may be missing", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		lastValues = relay.NewLastValueStore(rdb, ms(cfg.LastValueTTLMs))
		sinks = append(sinks, lastValues)
	}

	rel := relay.New(twins, relay.Options{
		AcceptTypes: cfg.AcceptTypes,
		Sinks:       sinks,
		Logger:      log,
		Metrics:     metrics,
	})

	// ---- MQTT ingress (opzionale) ----
	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = broker.NewConn(ctx, &broker.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		}, log)
		if err != nil {
			log.Error("mqtt ingress", "error", err)
			os.Exit(1)
		}
		var d *dedup.Deduper
		if cfg.MQTT.DedupTTLSec > 0 {
			d = dedup.New(time.Duration(cfg.MQTT.DedupTTLSec)*time.Second, 10000)
		}
		h := relay.NewMQTTHandler(rel, d, log)
		consumer := broker.NewConsumer(mqttClient, cfg.MQTT.Topic, byte(cfg.MQTT.QoS), h.Handle, log)
		go func() {
			if err := consumer.ConsumeMessage(ctx); err != nil {
				log.Error("mqtt consumer stopped", "error", err)
				stop()
			}
		}()
	}

	// ---- HTTP: CloudEvents + health + metrics ----
	ingress, err := relay.NewCloudEventsIngress(rel, log).Handler(ctx,
		cehttp.WithDefaultOptionsHandlerFunc([]string{http.MethodPost}, 100, cfg.AllowedOrigins, true))
	if err != nil {
		log.Error("cloudevents ingress", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.IngressPath, ingress)
	mux.Handle("/healthz", relay.NewHealthHandler(twins, mqttClient, writer))
	mux.Handle("/readyz", relay.NewReadyHandler(twins, mqttClient, writer, 30*time.Second))
	if lastValues != nil {
		mux.Handle("GET /twins/{id}/latest", relay.NewLatestHandler(lastValues))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", srv.Addr, "ingress", cfg.IngressPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			stop()
		}
	}()

	// ---- gRPC health ----
	var gs *grpc.Server
	var hs *health.Server
	if cfg.GRPCHealthPort != "" {
		gs, hs = startGRPCHealth(cfg.GRPCHealthPort, log, stop)
	}

	<-ctx.Done()
	log.Info("shutting down")

	if hs != nil {
		hs.Shutdown()
		gs.GracefulStop()
	}
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	broker.Close(mqttClient)
}

// startGRPCHealth espone il servizio standard grpc.health.v1 su una porta dedicata.
func startGRPCHealth(port string, log *slog.Logger, stop context.CancelFunc) (*grpc.Server, *health.Server) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Error("grpc health listen", "port", port, "error", err)
		stop()
		return nil, nil
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("twins-relay", healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Info("grpc health listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc health server", "error", err)
		}
	}()
	return gs, hs
}
