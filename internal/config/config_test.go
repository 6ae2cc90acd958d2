package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
server:
  port: 9090

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: grove
  password: hunter2
  name: grove_prod

auth:
  jwt_secret: super-secret
  token_ttl_minutes: 120

rate_limit:
  enabled: true
  rps: 25
  burst: 50

notifications:
  sweep_cron: "30 2 * * *"
  slack_token: xoxb-test
  slack_channel: C0123
`

const minimalYAML = `
auth:
  jwt_secret: dev-secret
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %s:%d, want 10.0.0.5:3307", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.Name != "grove_prod" {
		t.Errorf("Database.Name = %q, want grove_prod", cfg.Database.Name)
	}
	if cfg.Auth.TokenTTLMinutes != 120 {
		t.Errorf("Auth.TokenTTLMinutes = %d, want 120", cfg.Auth.TokenTTLMinutes)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 25 || cfg.RateLimit.Burst != 50 {
		t.Errorf("RateLimit = %+v, want enabled 25rps/50burst", cfg.RateLimit)
	}
	if cfg.Notifications.SweepCron != "30 2 * * *" {
		t.Errorf("SweepCron = %q", cfg.Notifications.SweepCron)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want default mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("Database = %s:%d, want 127.0.0.1:3306", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Database.Name != "grove" {
		t.Errorf("Database.Name = %q, want grove", cfg.Database.Name)
	}
	if cfg.Auth.TokenTTLMinutes != 60 {
		t.Errorf("Auth.TokenTTLMinutes = %d, want 60", cfg.Auth.TokenTTLMinutes)
	}
	if cfg.RateLimit.RPS != 10 || cfg.RateLimit.Burst != 20 {
		t.Errorf("RateLimit = %+v, want 10rps/20burst", cfg.RateLimit)
	}
	if cfg.Notifications.SweepCron != "0 3 * * *" {
		t.Errorf("SweepCron = %q, want default nightly", cfg.Notifications.SweepCron)
	}
}

func TestParse_MissingSecret(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: 8080\n"))
	if err == nil {
		t.Fatal("expected validation error for missing jwt_secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error %q does not mention jwt_secret", err)
	}
}

func TestParse_BadDriver(t *testing.T) {
	yaml := "auth:\n  jwt_secret: s\ndatabase:\n  driver: mongo\n"
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "mongo") {
		t.Errorf("error %q does not mention the bad driver", err)
	}
}

func TestParse_SlackChannelRequired(t *testing.T) {
	yaml := "auth:\n  jwt_secret: s\nnotifications:\n  slack_token: xoxb-1\n"
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for slack token without channel")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grove.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "super-secret" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("auth: ["))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
