// Package api exposes the fit/generate control plane over HTTP. Request
// and response bodies are structpb.Struct envelopes encoded with
// protojson, so the wire format stays protobuf-defined end to end.
package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"tracespectra/internal/burst"
	"tracespectra/internal/cascade"
	"tracespectra/internal/config"
	"tracespectra/internal/core/model"
	"tracespectra/internal/store"
	"tracespectra/internal/stream"
	"tracespectra/internal/tracegen"
	"tracespectra/pkg/ingest"
)

// Server holds the dependencies every handler needs.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	publisher *stream.Publisher
}

// New constructs a Server over an already-open store and publisher.
func New(cfg *config.Config, st *store.Store, pub *stream.Publisher) *Server {
	return &Server{cfg: cfg, store: st, publisher: pub}
}

// Router builds the gorilla/mux router for this server's routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/fit", s.handleFit).Methods("POST")
	r.HandleFunc("/api/v1/generate", s.handleGenerate).Methods("POST")
	r.HandleFunc("/api/v1/fit/{run_id}", s.handleGetFit).Methods("GET")
	return r
}

// Run starts an HTTP server on cfg.API.ListenAddr and blocks until
// SIGINT/SIGTERM, then shuts it down gracefully.
func (s *Server) Run() error {
	server := &http.Server{Addr: s.cfg.API.ListenAddr, Handler: s.Router()}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("API server exited.")
	return nil
}

// handleFit runs ingest + fitting against a pcap file and persists the
// result. Body: {"pcap_path": "...", "burst_timeout": 0.01, "run_id": "..."}.
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	req, err := readEnvelope(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to decode request: %v", err)
		return
	}

	pcapPath := stringField(req, "pcap_path", s.cfg.Ingest.PcapPath)
	burstTimeout := numberField(req, "burst_timeout", s.cfg.Ingest.BurstTimeout)
	runID := stringField(req, "run_id", s.cfg.Fit.RunID)

	analyzer, err := buildAnalyzer(pcapPath, burstTimeout)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to ingest %q: %v", pcapPath, err)
		return
	}

	srcSigma := fitCascadeSigma(analyzer.Flows(), func(k model.FlowKey) uint32 { return k.SAddr })
	dstSigma := fitCascadeSigma(analyzer.Flows(), func(k model.FlowKey) uint32 { return k.DAddr })
	alphaOn, alphaOff := analyzer.ParetoFit()

	rec := store.FitRecord{
		RunID:    runID,
		SrcSigma: srcSigma,
		DstSigma: dstSigma,
		AlphaOn:  alphaOn,
		AlphaOff: alphaOff,
		FittedAt: time.Now().UTC(),
	}

	if err := s.store.WriteFit(r.Context(), rec); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to persist fit: %v", err)
		return
	}

	writeEnvelope(w, fitRecordFields(rec))
}

// handleGetFit returns the latest persisted fit for a run.
func (s *Server) handleGetFit(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]

	rec, err := s.store.LatestFit(r.Context(), runID)
	if err != nil {
		httpError(w, http.StatusNotFound, "no fit found for run %q: %v", runID, err)
		return
	}

	writeEnvelope(w, fitRecordFields(*rec))
}

// handleGenerate runs trace generation against the configured ingest pcap,
// publishing every synthetic packet and persisting a summary. run_id only
// labels the published packets and the summary; no persisted fit is read.
// Body: {"run_id": "...", "time": {...}, "addr": {...}, "num_packets": 0}.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := readEnvelope(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to decode request: %v", err)
		return
	}

	runID := stringField(req, "run_id", s.cfg.Fit.RunID)
	tp := tracegen.TimeParameters{
		AOn:           numberField(structField(req, "time"), "a_on", s.cfg.Generate.Time.AOn),
		MOn:           numberField(structField(req, "time"), "m_on", s.cfg.Generate.Time.MOn),
		AOff:          numberField(structField(req, "time"), "a_off", s.cfg.Generate.Time.AOff),
		MOff:          numberField(structField(req, "time"), "m_off", s.cfg.Generate.Time.MOff),
		TotalDuration: numberField(structField(req, "time"), "total_duration", s.cfg.Generate.Time.TotalDuration),
	}
	ap := tracegen.AddrParameters{
		SrcSigma: numberField(structField(req, "addr"), "src_sigma", s.cfg.Generate.Addr.SrcSigma),
		DstSigma: numberField(structField(req, "addr"), "dst_sigma", s.cfg.Generate.Addr.DstSigma),
	}
	numPackets := int(numberField(req, "num_packets", float64(s.cfg.Generate.NumPackets)))

	analyzer, err := buildAnalyzer(s.cfg.Ingest.PcapPath, s.cfg.Ingest.BurstTimeout)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to ingest %q: %v", s.cfg.Ingest.PcapPath, err)
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	tg := tracegen.New(analyzer, tp, ap, numPackets, rng)

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

		if s.publisher != nil {
			if err := s.publisher.Publish(runID, key, pkt); err != nil {
				httpError(w, http.StatusInternalServerError, "failed to publish packet: %v", err)
				return
			}
		}
	}

	sum := store.TraceSummary{
		RunID:       runID,
		Flows:       flows,
		Packets:     packets,
		Bytes:       bytes,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.WriteTraceSummary(r.Context(), sum); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to persist trace summary: %v", err)
		return
	}

	writeEnvelope(w, traceSummaryFields(sum))
}

func buildAnalyzer(pcapPath string, burstTimeout float64) (*burst.TimeAnalyzer, error) {
	reader, err := ingest.Open(pcapPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	analyzer := burst.NewTimeAnalyzer(burstTimeout)
	_, err = reader.Each(func(key model.FlowKey, pkt model.Packet) error {
		analyzer.Add(key, pkt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analyzer, nil
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

func fitRecordFields(rec store.FitRecord) map[string]interface{} {
	return map[string]interface{}{
		"run_id":     rec.RunID,
		"src_sigma":  rec.SrcSigma,
		"dst_sigma":  rec.DstSigma,
		"alpha_on":   rec.AlphaOn,
		"alpha_off":  rec.AlphaOff,
		"fitted_at":  rec.FittedAt.Format(time.RFC3339),
	}
}

func traceSummaryFields(sum store.TraceSummary) map[string]interface{} {
	return map[string]interface{}{
		"run_id":       sum.RunID,
		"flows":        float64(sum.Flows),
		"packets":      float64(sum.Packets),
		"bytes":        float64(sum.Bytes),
		"generated_at": sum.GeneratedAt.Format(time.RFC3339),
	}
}

func readEnvelope(r *http.Request) (*structpb.Struct, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	var env structpb.Struct
	if err := protojson.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling request body: %w", err)
	}
	return &env, nil
}

func writeEnvelope(w http.ResponseWriter, fields map[string]interface{}) {
	env, err := structpb.NewStruct(fields)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to build response: %v", err)
		return
	}
	data, err := protojson.Marshal(env)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to marshal response: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func httpError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	http.Error(w, fmt.Sprintf(format, args...), status)
}

func structField(env *structpb.Struct, key string) *structpb.Struct {
	if env == nil {
		return nil
	}
	v, ok := env.GetFields()[key]
	if !ok {
		return nil
	}
	return v.GetStructValue()
}

func stringField(env *structpb.Struct, key, fallback string) string {
	if env == nil {
		return fallback
	}
	v, ok := env.GetFields()[key]
	if !ok || v.GetStringValue() == "" {
		return fallback
	}
	return v.GetStringValue()
}

func numberField(env *structpb.Struct, key string, fallback float64) float64 {
	if env == nil {
		return fallback
	}
	v, ok := env.GetFields()[key]
	if !ok {
		return fallback
	}
	return v.GetNumberValue()
}
