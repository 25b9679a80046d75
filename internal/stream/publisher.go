// Package stream publishes and consumes synthetic packets over NATS,
// encoding each one as a structpb.Struct so the wire format stays real
// protobuf without a protoc-generated message type.
package stream

import (
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"tracespectra/internal/config"
	"tracespectra/internal/core/model"
)

// Publisher publishes synthetic packets to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a Publisher for cfg.Subject.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("stream: connecting to %q: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish encodes one (FlowKey, Packet) tuple as a structpb.Struct and
// publishes it under runID.
func (p *Publisher) Publish(runID string, key model.FlowKey, pkt model.Packet) error {
	envelope, err := structpb.NewStruct(map[string]interface{}{
		"run_id":    runID,
		"saddr":     float64(key.SAddr),
		"daddr":     float64(key.DAddr),
		"time":      pkt.Time,
		"sport":     float64(pkt.SPort),
		"dport":     float64(pkt.DPort),
		"proto":     float64(pkt.Proto),
		"len":       float64(pkt.Len),
		"tcp_flags": float64(pkt.TCPFlags),
	})
	if err != nil {
		return fmt.Errorf("stream: building envelope: %w", err)
	}

	data, err := proto.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("stream: marshaling envelope: %w", err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("stream: publishing to %q: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
