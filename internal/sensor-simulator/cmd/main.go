package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	sensorSimulator "github.com/LeonardoBeccarini/iothub_twins_relay/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/iothub_twins_relay/pkg/broker"
)

func main() {
	mode := flag.String("mode", "mqtt", "delivery mode: mqtt or http")
	devices := flag.Int("devices", 3, "number of simulated rooms")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	target := flag.String("target", "http://localhost:8080/api/events", "relay CloudEvents endpoint (http mode)")
	hub := flag.String("hub", "simulated-hub", "IoT Hub name used as event source")
	host := flag.String("mqtt-host", "localhost", "MQTT broker host")
	port := flag.Int("mqtt-port", 1883, "MQTT broker port")
	user := flag.String("mqtt-user", "guest", "MQTT user")
	pass := flag.String("mqtt-password", "guest", "MQTT password")
	clientID := flag.String("client-id", "sensorSimulator", "MQTT client ID")
	topic := flag.String("topic", "devices/{device}/messages/events", "MQTT topic pattern")
	qos := flag.Int("qos", 1, "MQTT QoS")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "sensor-simulator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender sensorSimulator.Sender
	switch *mode {
	case "mqtt":
		client, err := broker.NewConn(ctx, &broker.Config{
			Host: *host, Port: *port, User: *user, Password: *pass, ClientID: *clientID,
		}, log)
		if err != nil {
			log.Error("mqtt connection failed", "error", err)
			os.Exit(1)
		}
		defer broker.Close(client)
		sender = sensorSimulator.NewMQTTSender(client, *topic, byte(*qos))
	case "http":
		c, err := cloudevents.NewClientHTTP()
		if err != nil {
			log.Error("cloudevents client", "error", err)
			os.Exit(1)
		}
		sender = sensorSimulator.NewCloudEventSender(c, *target, *hub)
	default:
		log.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}

	sim := sensorSimulator.NewSensorSimulator(
		sensorSimulator.DefaultDevices(*devices),
		sensorSimulator.NewDataGenerator(*seed),
		sender, log)

	log.Info("simulator started", "mode", *mode, "devices", *devices, "interval", interval.String())
	sim.Start(ctx, *interval)
}
