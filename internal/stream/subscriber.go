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

// Handler processes one decoded synthetic packet.
type Handler func(runID string, key model.FlowKey, pkt model.Packet)

// Subscriber consumes synthetic packets published on a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS and returns a Subscriber for cfg.Subject.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("stream: connecting to %q: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Subscribe starts delivering every message on the subject to handler.
func (s *Subscriber) Subscribe(handler Handler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		runID, key, pkt, err := decodeEnvelope(msg.Data)
		if err != nil {
			log.Printf("stream: decoding envelope: %v", err)
			return
		}
		handler(runID, key, pkt)
	})
	if err != nil {
		return fmt.Errorf("stream: subscribing to %q: %w", s.subject, err)
	}
	s.sub = sub
	log.Printf("Subscribed to %q. Waiting for messages...", s.subject)
	return nil
}

func decodeEnvelope(data []byte) (string, model.FlowKey, model.Packet, error) {
	var envelope structpb.Struct
	if err := proto.Unmarshal(data, &envelope); err != nil {
		return "", model.FlowKey{}, model.Packet{}, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	fields := envelope.GetFields()

	key := model.FlowKey{
		SAddr: uint32(fields["saddr"].GetNumberValue()),
		DAddr: uint32(fields["daddr"].GetNumberValue()),
	}
	pkt := model.Packet{
		Time:     fields["time"].GetNumberValue(),
		SPort:    uint16(fields["sport"].GetNumberValue()),
		DPort:    uint16(fields["dport"].GetNumberValue()),
		Proto:    uint8(fields["proto"].GetNumberValue()),
		Len:      uint16(fields["len"].GetNumberValue()),
		TCPFlags: uint8(fields["tcp_flags"].GetNumberValue()),
	}
	runID := fields["run_id"].GetStringValue()

	return runID, key, pkt, nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
