package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/ocppfleet/core/mqtt"
	"github.com/kilianp07/ocppfleet/infra/sim"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		_ = os.Setenv("LOG_LEVEL", "info")
	}
	topics := coremqtt.Topics{Request: cfg.RequestTopic, Response: cfg.ResponseTopic}.WithDefaults()
	if err := topics.Validate(); err != nil {
		log.Fatalf("invalid topics: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newMQTTClient(cfg.Broker, "cp-simulator")
	if err != nil {
		log.Fatalf("connect %s: %v", cfg.Broker, err)
	}
	defer cli.Disconnect(250)

	responder := sim.NewRandomResponder(cfg.ReplyLatency, cfg.DropRate, cfg.FaultRate, cfg.Seed)
	bridge := sim.NewBridge(cli, topics, responder, GenerateIDs(cfg.Prefix, cfg.Count))
	if err := bridge.Serve(ctx); err != nil {
		log.Fatalf("simulator: %v", err)
	}
	log.Printf("handled %d calls", bridge.Handled())
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.IntVar(&cfg.Count, "count", 1, "number of charge points")
	flag.StringVar(&cfg.Prefix, "prefix", "CP", "charge point id prefix")
	flag.DurationVar(&cfg.ReplyLatency, "reply-latency", 0, "reply latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "share of calls left unanswered")
	flag.Float64Var(&cfg.FaultRate, "fault-rate", 0, "share of calls answered with a call error")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	flag.StringVar(&cfg.RequestTopic, "request-topic", coremqtt.DefaultRequestTopic, "request topic pattern")
	flag.StringVar(&cfg.ResponseTopic, "response-topic", coremqtt.DefaultResponseTopic, "response topic pattern")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	flag.Parse()
	return cfg
}

func newMQTTClient(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}
