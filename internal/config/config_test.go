package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "flowlytix-licensing" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "flowlytix-licensing")
	}
	if cfg.JWTAudience != "flowlytix-app" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "flowlytix-app")
	}
	if cfg.TokenTTL != "1h" {
		t.Errorf("TokenTTL = %q, want %q", cfg.TokenTTL, "1h")
	}
	if cfg.GraceWindow != "72h" {
		t.Errorf("GraceWindow = %q, want %q", cfg.GraceWindow, "72h")
	}
	if cfg.SkewTolerance != "5m" {
		t.Errorf("SkewTolerance = %q, want %q", cfg.SkewTolerance, "5m")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.TelemetryKafkaTopic != "licensing-events" {
		t.Errorf("TelemetryKafkaTopic = %q, want default", cfg.TelemetryKafkaTopic)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("TOKEN_TTL", "30m")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.TokenLifetime() != 30*time.Minute {
		t.Errorf("TokenLifetime = %v, want 30m", cfg.TokenLifetime())
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("BCRYPT_COST", "50")

	if _, err := Load(); err == nil {
		t.Error("expected error for out-of-range BCRYPT_COST")
	}
}

func TestLoad_ProductionRequiresAdminKeyHash(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Error("expected error when ADMIN_API_KEY_HASH is empty in production")
	}

	os.Setenv("ADMIN_API_KEY_HASH", "$2a$12$abcdefghijklmnopqrstuv")
	if _, err := Load(); err != nil {
		t.Errorf("Load with hash set: %v", err)
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{TokenTTL: "garbage", GraceWindow: "", SkewTolerance: "-5m"}
	if cfg.TokenLifetime() != time.Hour {
		t.Errorf("TokenLifetime fallback = %v, want 1h", cfg.TokenLifetime())
	}
	if cfg.GraceDuration() != 72*time.Hour {
		t.Errorf("GraceDuration fallback = %v, want 72h", cfg.GraceDuration())
	}
	if cfg.SkewDuration() != 5*time.Minute {
		t.Errorf("SkewDuration fallback = %v, want 5m", cfg.SkewDuration())
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	cfg := &Config{TelemetryKafkaBrokers: "localhost:9092, broker2:9092 ,"}
	got := cfg.TelemetryKafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "broker2:9092" {
		t.Errorf("brokers = %v", got)
	}

	var nilCfg *Config
	if nilCfg.TelemetryKafkaBrokersList() != nil {
		t.Error("nil config should yield nil broker list")
	}
}
