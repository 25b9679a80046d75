package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
ingest:
  pcap_path: "capture.pcap"
  burst_timeout: 0.01
generate:
  time:
    a_on: 1.4
    m_on: 0.002
    a_off: 1.2
    m_off: 0.01
    total_duration: 60.0
  addr:
    src_sigma: 0.35
    dst_sigma: 0.40
clickhouse:
  host: "localhost"
  port: 9000
  database: "tracegen"
nats:
  url: "nats://127.0.0.1:4222"
  subject: "tracegen.packets.synthetic"
api:
  listen_addr: ":8090"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ClickHouse.Database != "tracegen" {
		t.Errorf("clickhouse.database = %q, want tracegen", cfg.ClickHouse.Database)
	}
	if cfg.Generate.Time.TotalDuration != 60.0 {
		t.Errorf("generate.time.total_duration = %v, want 60.0", cfg.Generate.Time.TotalDuration)
	}
	if cfg.API.ListenAddr != ":8090" {
		t.Errorf("api.listen_addr = %q, want :8090", cfg.API.ListenAddr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestLoadConfigRejectsBadParameters(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"non-positive m_on", `
generate:
  time:
    a_on: 1.4
    m_on: 0
    a_off: 1.2
    m_off: 0.01
    total_duration: 60.0
`},
		{"m_off exceeds window", `
generate:
  time:
    a_on: 1.4
    m_on: 0.002
    a_off: 1.2
    m_off: 100.0
    total_duration: 60.0
`},
		{"negative burst timeout", `
ingest:
  burst_timeout: -1.0
generate:
  time:
    a_on: 1.4
    m_on: 0.002
    a_off: 1.2
    m_off: 0.01
    total_duration: 60.0
`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := LoadConfig(writeTemp(t, c.yaml)); err == nil {
				t.Fatalf("expected LoadConfig to reject %s", c.name)
			}
		})
	}
}
