// Package ingest decodes pcap files and live captures into the
// (FlowKey, Packet) tuples the statistical core consumes, using gopacket
// for link/IPv4/TCP/UDP decoding. IPv6 and non-TCP/UDP packets are
// skipped and counted rather than failing the whole capture.
package ingest

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"tracespectra/internal/core/model"
)

// CaptureStats summarizes one pass over a capture; it is host-side
// telemetry only and is never consumed by the statistical core.
type CaptureStats struct {
	Read    int
	Dropped int
	Span    time.Duration
}

// Reader decodes packets from a pcap handle, whether an offline file or a
// live interface capture.
type Reader struct {
	handle *pcap.Handle
}

// Open opens a pcap file for offline reading.
func Open(path string) (*Reader, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening %q: %w", path, err)
	}
	return &Reader{handle: handle}, nil
}

// Live opens a network interface for live capture. A non-positive timeout
// blocks forever between packets.
func Live(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, fmt.Errorf("ingest: opening interface %q: %w", iface, err)
	}
	return &Reader{handle: handle}, nil
}

// Close releases the underlying pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// Each decodes every packet in the capture and invokes fn with its
// (FlowKey, Packet) tuple. It stops at the first error fn returns.
func (r *Reader) Each(fn func(model.FlowKey, model.Packet) error) (CaptureStats, error) {
	var stats CaptureStats
	var first, last time.Time

	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for raw := range source.Packets() {
		key, pkt, ok := decode(raw)
		if !ok {
			stats.Dropped++
			continue
		}
		stats.Read++

		ts := raw.Metadata().Timestamp
		if first.IsZero() {
			first = ts
		}
		last = ts

		if err := fn(key, pkt); err != nil {
			return stats, err
		}
	}
	if !first.IsZero() {
		stats.Span = last.Sub(first)
	}
	return stats, nil
}

// decode extracts a FlowKey and Packet from a raw gopacket.Packet,
// reporting ok=false for anything that isn't IPv4-over-TCP/UDP.
func decode(raw gopacket.Packet) (model.FlowKey, model.Packet, bool) {
	ipLayer := raw.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return model.FlowKey{}, model.Packet{}, false
	}
	ip := ipLayer.(*layers.IPv4)

	key := model.FlowKey{
		SAddr: addrToUint32(ip.SrcIP),
		DAddr: addrToUint32(ip.DstIP),
	}
	pkt := model.Packet{
		Time:  timestampSeconds(raw),
		Proto: uint8(ip.Protocol),
		Len:   uint16(ip.Length),
	}

	switch {
	case raw.Layer(layers.LayerTypeTCP) != nil:
		tcp := raw.Layer(layers.LayerTypeTCP).(*layers.TCP)
		pkt.SPort = uint16(tcp.SrcPort)
		pkt.DPort = uint16(tcp.DstPort)
		pkt.TCPFlags = packTCPFlags(tcp)
	case raw.Layer(layers.LayerTypeUDP) != nil:
		udp := raw.Layer(layers.LayerTypeUDP).(*layers.UDP)
		pkt.SPort = uint16(udp.SrcPort)
		pkt.DPort = uint16(udp.DstPort)
	default:
		return model.FlowKey{}, model.Packet{}, false
	}

	return key, pkt, true
}

// addrToUint32 converts a dotted-quad net.IP to a host-byte-order uint32,
// which is the address representation the statistical core expects.
func addrToUint32(ip []byte) uint32 {
	v4 := ip
	if len(ip) == 16 {
		v4 = ip[12:16]
	}
	return binary.BigEndian.Uint32(v4)
}

// packTCPFlags packs the boolean TCP control bits into Packet's single
// tcpflags byte.
func packTCPFlags(tcp *layers.TCP) uint8 {
	var flags uint8
	if tcp.FIN {
		flags |= 1 << 0
	}
	if tcp.SYN {
		flags |= 1 << 1
	}
	if tcp.RST {
		flags |= 1 << 2
	}
	if tcp.PSH {
		flags |= 1 << 3
	}
	if tcp.ACK {
		flags |= 1 << 4
	}
	if tcp.URG {
		flags |= 1 << 5
	}
	return flags
}

func timestampSeconds(p gopacket.Packet) float64 {
	meta := p.Metadata()
	if meta == nil {
		return 0
	}
	return float64(meta.Timestamp.UnixNano()) / 1e9
}
