package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const testConfig = `
database:
  url: /tmp/meterlink.db
instrument:
  host: 10.0.0.5
  port: 8765
  fields:
    - name: W1
      path: Results.Width1
      unit: um
    - name: H2
      path: Results.Height2
      unit: um
poller:
  period_ms: 250
erp:
  enabled: true
  url: https://erp.example.com/api
  login: meter
  password: secret
  period: 60
`

func TestLoadConfig(t *testing.T) {
	conf, err := Load(writeFile(t, "config.yml", testConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if conf.Database.Driver != DriverSQLite || conf.Database.URL != "/tmp/meterlink.db" {
		t.Fatalf("unexpected database %+v", conf.Database)
	}
	if conf.Instrument.Host != "10.0.0.5" || conf.Instrument.Port != 8765 || len(conf.Instrument.Fields) != 2 {
		t.Fatalf("unexpected instrument %+v", conf.Instrument)
	}
	if conf.Instrument.TimeoutMs != 2000 {
		t.Fatalf("expected default read timeout, got %d", conf.Instrument.TimeoutMs)
	}
	if conf.Poller.PeriodMs != 250 || conf.Poller.IdleMs != 1000 || conf.Poller.BackoffMinMs != 1000 || conf.Poller.BackoffMaxMs != 30000 {
		t.Fatalf("unexpected poller %+v", conf.Poller)
	}
	if !conf.ERP.Enabled || conf.ERP.Operation != "create_measurement" || conf.ERP.TimeoutMs != 10000 || conf.ERP.PeriodSecs != 60 {
		t.Fatalf("unexpected erp %+v", conf.ERP)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		conf  string
		error string
	}{
		{"no fields", "instrument:\n  host: x\n", "no instrument fields"},
		{"bad field name", "instrument:\n  fields:\n    - name: 1W\n      path: x\n", "invalid field name"},
		{"no path", "instrument:\n  fields:\n    - name: W1\n", "no result path"},
		{"duplicated", "instrument:\n  fields:\n    - name: W1\n      path: a\n    - name: W1\n      path: b\n", "duplicated field"},
		{"driver", "database:\n  driver: oracle\n", "unsupported database driver"},
		{"mysql without url", "database:\n  driver: mysql\n", "database url is required"},
		{"erp without url", "instrument:\n  fields:\n    - name: W1\n      path: a\nerp:\n  enabled: true\n", "erp url is required"},
		{"backoff", "instrument:\n  fields:\n    - name: W1\n      path: a\npoller:\n  backoff_min_ms: 500\n  backoff_max_ms: 100\n", "backoff_max_ms"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yml", test.conf))
			if err == nil || !strings.Contains(err.Error(), test.error) {
				t.Fatalf("expected error containing '%s', got %v", test.error, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeFile(t, "settings.yml", `
sample_name: S1
group_name: G
operator: alice
position_name: P1
sop:
  lens: "x20"
  temperature: "21"
`)

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if !settings.Active() || settings.Operator != "alice" || settings.SOP["lens"] != "x20" {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if settings.Slide() != "S1-P1" {
		t.Fatalf("unexpected slide id %s", settings.Slide())
	}

	if _, err = LoadSettings(writeFile(t, "bad.yml", "sample_name: S1\n")); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected invalid settings, got %v", err)
	}
}
