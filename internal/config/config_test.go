package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_DefaultsAndPlatforms(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9090"
platforms:
  reddit:
    enabled: true
    client_id: cid
    client_secret: sec
    redirect_uri: https://app/cb
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9090" {
		t.Fatalf("Addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" || c.Cache.Kind != "memory" {
		t.Fatalf("defaults: driver=%q cache=%q", c.Storage.Driver, c.Cache.Kind)
	}
	if c.Rate.MaxRequests != 120 || c.Rate.Window != "1m" {
		t.Fatalf("rate defaults: %+v", c.Rate)
	}
	pc := c.Platforms["reddit"]
	if !pc.Enabled || pc.ClientID != "cid" {
		t.Fatalf("platforms: %+v", pc)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("DISCORD_CLIENT_ID", "env-cid")
	t.Setenv("DISCORD_CLIENT_SECRET", "env-sec")
	t.Setenv("SECRETBOX_MASTER_KEY", "mk")

	p := writeYAML(t, "server:\n  addr: \":9090\"\n")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":7070" {
		t.Fatalf("env no pisó addr: %q", c.Server.Addr)
	}
	d := c.Platforms["discord"]
	if !d.Enabled || d.ClientID != "env-cid" || d.ClientSecret != "env-sec" {
		t.Fatalf("discord por env: %+v", d)
	}
	if c.Security.SecretBoxMasterKey != "mk" {
		t.Fatalf("master key = %q", c.Security.SecretBoxMasterKey)
	}
}

func TestLoad_RejectsBadDurationAndDriver(t *testing.T) {
	if _, err := Load(writeYAML(t, "rate:\n  window: \"un rato\"\n")); err == nil {
		t.Fatal("duración inválida aceptada")
	}
	if _, err := Load(writeYAML(t, "storage:\n  driver: cassandra\n")); err == nil {
		t.Fatal("driver desconocido aceptado")
	}
	if _, err := Load(writeYAML(t, "storage:\n  driver: postgres\n")); err == nil {
		t.Fatal("postgres sin dsn aceptado")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Fatalf("Addr = %q", c.Server.Addr)
	}
}

func TestDur(t *testing.T) {
	if Dur("90s", time.Minute) != 90*time.Second {
		t.Fatal("no parsea")
	}
	if Dur("", time.Minute) != time.Minute {
		t.Fatal("fallback vacío")
	}
}
