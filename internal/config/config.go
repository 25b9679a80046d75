// Package config loads the YAML configuration shared by the ts-fit,
// ts-gen, and ts-api commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IngestConfig configures the pcap-to-core adapter.
type IngestConfig struct {
	PcapPath     string  `yaml:"pcap_path"`
	BurstTimeout float64 `yaml:"burst_timeout"`
}

// FitConfig configures a fitting run's identity for persistence.
type FitConfig struct {
	RunID string `yaml:"run_id"`
}

// TimeGenConfig is the Pareto on/off shape, scale, and window parameters.
type TimeGenConfig struct {
	AOn           float64 `yaml:"a_on"`
	MOn           float64 `yaml:"m_on"`
	AOff          float64 `yaml:"a_off"`
	MOff          float64 `yaml:"m_off"`
	TotalDuration float64 `yaml:"total_duration"`
}

// AddrGenConfig is the cascade spread for source and destination address
// spaces.
type AddrGenConfig struct {
	SrcSigma float64 `yaml:"src_sigma"`
	DstSigma float64 `yaml:"dst_sigma"`
}

// GenerateConfig configures a trace generation run.
type GenerateConfig struct {
	Time       TimeGenConfig `yaml:"time"`
	Addr       AddrGenConfig `yaml:"addr"`
	NumPackets int           `yaml:"num_packets"`
}

// ClickHouseConfig configures the fit-result and trace-summary store.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig configures the synthetic-packet publisher/subscriber.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig configures the HTTP query surface.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Fit        FitConfig        `yaml:"fit"`
	Generate   GenerateConfig   `yaml:"generate"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file, validates it, and
// returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects parameter combinations that would otherwise panic deep
// inside fitting or generation, so a malformed config fails fast with a
// descriptive message.
func (c *Config) validate() error {
	g := c.Generate
	if g.Time.MOn <= 0 || g.Time.AOn <= 0 || g.Time.MOff <= 0 || g.Time.AOff <= 0 {
		return fmt.Errorf("config: generate.time shape/scale parameters must be positive: %+v", g.Time)
	}
	if g.Time.MOff >= g.Time.TotalDuration {
		return fmt.Errorf("config: generate.time.m_off (%v) must be less than total_duration (%v)",
			g.Time.MOff, g.Time.TotalDuration)
	}
	if c.Ingest.BurstTimeout < 0 {
		return fmt.Errorf("config: ingest.burst_timeout must be non-negative, got %v", c.Ingest.BurstTimeout)
	}
	return nil
}
