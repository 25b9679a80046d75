// Command ts-api serves the HTTP control plane for fitting and generation
// runs, backed by ClickHouse and NATS.
package main

import (
	"flag"
	"log"

	"tracespectra/internal/api"
	"tracespectra/internal/config"
	"tracespectra/internal/store"
	"tracespectra/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML config file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	st, err := store.New(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}

	pub, err := stream.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	server := api.New(cfg, st, pub)
	if err := server.Run(); err != nil {
		log.Fatalf("API server error: %v", err)
	}
}
