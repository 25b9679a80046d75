// Package model holds the value types the cascade, burst, and tracegen
// packages operate on. Addresses are host-byte-order uint32s rather than
// net.IP: the statistical core never needs to print or parse an address,
// only to mask, insert, and compare it.
package model

// FlowKey identifies a flow by its address pair only. Ports are carried
// per-packet but never used for grouping.
type FlowKey struct {
	SAddr uint32
	DAddr uint32
}

// Packet is a per-packet record in host byte order.
type Packet struct {
	Time     float64 // seconds since epoch
	SPort    uint16
	DPort    uint16
	Proto    uint8
	Len      uint16 // IP total length
	TCPFlags uint8
}

// Burst is a maximal run of packets in a flow with consecutive gaps below
// the configured burst timeout.
type Burst struct {
	StartTime float64
	EndTime   float64
	Packets   []Packet
}
