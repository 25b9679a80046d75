// Command ts-gen synthesizes a globally time-ordered packet trace from a
// pcap capture's flow structure and target time/address parameters,
// publishing every packet to NATS and persisting a summary to ClickHouse.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"time"

	"tracespectra/internal/burst"
	"tracespectra/internal/config"
	"tracespectra/internal/core/model"
	"tracespectra/internal/store"
	"tracespectra/internal/stream"
	"tracespectra/internal/tracegen"
	"tracespectra/pkg/ingest"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML config file.")
	seed := flag.Int64("seed", 0, "PRNG seed; 0 derives one from the current time.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	reader, err := ingest.Open(cfg.Ingest.PcapPath)
	if err != nil {
		log.Fatalf("Failed to open pcap file %q: %v", cfg.Ingest.PcapPath, err)
	}
	analyzer := burst.NewTimeAnalyzer(cfg.Ingest.BurstTimeout)
	if _, err := reader.Each(func(key model.FlowKey, pkt model.Packet) error {
		analyzer.Add(key, pkt)
		return nil
	}); err != nil {
		reader.Close()
		log.Fatalf("Failed while reading %q: %v", cfg.Ingest.PcapPath, err)
	}
	reader.Close()

	pub, err := stream.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	st, err := store.New(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	tp := tracegen.TimeParameters{
		AOn:           cfg.Generate.Time.AOn,
		MOn:           cfg.Generate.Time.MOn,
		AOff:          cfg.Generate.Time.AOff,
		MOff:          cfg.Generate.Time.MOff,
		TotalDuration: cfg.Generate.Time.TotalDuration,
	}
	ap := tracegen.AddrParameters{
		SrcSigma: cfg.Generate.Addr.SrcSigma,
		DstSigma: cfg.Generate.Addr.DstSigma,
	}
	tg := tracegen.New(analyzer, tp, ap, cfg.Generate.NumPackets, rng)

	var flows, packets, bytes uint64
	seen := make(map[model.FlowKey]bool)
	for {
		key, pkt, ok := tg.NextPacket()
		if !ok {
			break
		}
		if !seen[key] {
			seen[key] = true
			flows++
		}
		packets++
		bytes += uint64(pkt.Len)

		if err := pub.Publish(cfg.Fit.RunID, key, pkt); err != nil {
			log.Printf("Failed to publish packet: %v", err)
		}
		if packets%10000 == 0 {
			log.Printf("%d packets published...", packets)
		}
	}
	log.Printf("Generation complete: %d flows, %d packets, %d bytes.", flows, packets, bytes)

	sum := store.TraceSummary{
		RunID:       cfg.Fit.RunID,
		Flows:       flows,
		Packets:     packets,
		Bytes:       bytes,
		GeneratedAt: time.Now().UTC(),
	}
	if err := st.WriteTraceSummary(context.Background(), sum); err != nil {
		log.Fatalf("Failed to persist trace summary: %v", err)
	}
	log.Printf("Persisted trace summary for run %q.", cfg.Fit.RunID)
}
