package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestParseYAML(t *testing.T) {
	p := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./bot.db
fanout:
  workers: 8
  rate_per_sec: 25
categories:
  - key: power
    label: "Свет"
`)
	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Fanout.Workers != 8 || cfg.Fanout.RatePerSec != 25 {
		t.Fatalf("fanout = %+v", cfg.Fanout)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0].Key != "power" {
		t.Fatalf("categories = %+v", cfg.Categories)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return committed config")
	}
}

func TestParseJSON(t *testing.T) {
	p := writeConfig(t, "config.json", `{"telegram":{"token":"t"},"http":{"enabled":true,"addr":":9090"}}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Addr != ":9090" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeConfig(t, "config.yaml", "telegram:\n  token: t\n  typo_field: 1\n")
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeConfig(t, "config.json", `{"telegram":{"token":"t"}}{"extra":1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestDurationHelpers(t *testing.T) {
	d, err := ParseDurationField("x", "90s")
	if err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "ninety"); err == nil {
		t.Fatal("expected parse error")
	}
	d, err = ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	p := writeConfig(t, "config.yaml", "telegram:\n  token: t\n")
	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config published")
		}
	default:
		t.Fatal("nothing published")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
}
