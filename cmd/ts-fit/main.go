// Command ts-fit reads a pcap capture, fits address-cascade and burst-timing
// parameters against it, and persists the result to ClickHouse.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"tracespectra/internal/burst"
	"tracespectra/internal/cascade"
	"tracespectra/internal/config"
	"tracespectra/internal/core/model"
	"tracespectra/internal/store"
	"tracespectra/pkg/ingest"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML config file.")
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
	defer reader.Close()

	analyzer := burst.NewTimeAnalyzer(cfg.Ingest.BurstTimeout)
	stats, err := reader.Each(func(key model.FlowKey, pkt model.Packet) error {
		analyzer.Add(key, pkt)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed while reading %q: %v", cfg.Ingest.PcapPath, err)
	}
	log.Printf("Read %d packets (%d dropped) spanning %s from %q", stats.Read, stats.Dropped, stats.Span, cfg.Ingest.PcapPath)

	srcSigma := fitCascadeSigma(analyzer.Flows(), func(k model.FlowKey) uint32 { return k.SAddr })
	dstSigma := fitCascadeSigma(analyzer.Flows(), func(k model.FlowKey) uint32 { return k.DAddr })
	alphaOn, alphaOff := analyzer.ParetoFit()
	log.Printf("Fitted src_sigma=%.4f dst_sigma=%.4f alpha_on=%.4f alpha_off=%.4f", srcSigma, dstSigma, alphaOn, alphaOff)

	st, err := store.New(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}

	rec := store.FitRecord{
		RunID:    cfg.Fit.RunID,
		SrcSigma: srcSigma,
		DstSigma: dstSigma,
		AlphaOn:  alphaOn,
		AlphaOff: alphaOff,
		FittedAt: time.Now().UTC(),
	}
	if err := st.WriteFit(context.Background(), rec); err != nil {
		log.Fatalf("Failed to persist fit result: %v", err)
	}
	log.Printf("Persisted fit result for run %q.", cfg.Fit.RunID)
}

func fitCascadeSigma(flows []model.FlowKey, proj func(model.FlowKey) uint32) float64 {
	tree := cascade.NewPrefixTree()
	seen := make(map[uint32]bool)
	for _, k := range flows {
		a := proj(k)
		if seen[a] {
			continue
		}
		seen[a] = true
		tree.Add(a, 1.0)
	}
	tree.Prefixify()
	return tree.FitLogitNormal()
}
