package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"trading-dashboard/config"
)

func TestDisabledClientReturnsNoSecrets(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	secrets, err := c.ReadSecrets(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(secrets) != 0 {
		t.Errorf("Expected empty secrets, got %v", secrets)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Expected nil health for disabled client, got %v", err)
	}
}

// TestReadSecretsFromKV verifies the KV v2 path and the cache
func TestReadSecretsFromKV(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/v1/secret/data/trading-dashboard" {
			t.Errorf("Unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			t.Errorf("Expected token header, got %q", r.Header.Get("X-Vault-Token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"data":{"jwt_secret":"s3cret","database_password":"pg","ttl":5},"metadata":{"version":1}}}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "test-token",
		MountPath:  "secret",
		SecretPath: "trading-dashboard",
	})
	if err != nil {
		t.Fatal(err)
	}

	secrets, err := c.ReadSecrets(context.Background())
	if err != nil {
		t.Fatalf("ReadSecrets failed: %v", err)
	}
	if secrets["jwt_secret"] != "s3cret" || secrets["database_password"] != "pg" {
		t.Errorf("Unexpected secrets %v", secrets)
	}
	if _, ok := secrets["ttl"]; ok {
		t.Error("Expected non-string fields to be skipped")
	}

	secrets["jwt_secret"] = "mutated"
	again, _ := c.ReadSecrets(context.Background())
	if again["jwt_secret"] != "s3cret" {
		t.Error("Expected cached copy to be isolated from callers")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected one vault read, got %d", n)
	}
}

func TestGetStatsReportsSealedVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sys/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"initialized":true,"sealed":true,"standby":false,"version":"1.15.0"}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{Enabled: true, Address: srv.URL, Token: "t", MountPath: "secret", SecretPath: "x"})
	if err != nil {
		t.Fatal(err)
	}
	stats := c.GetStats()
	if stats["healthy"] != false {
		t.Errorf("Expected sealed vault to be unhealthy, got %v", stats)
	}
	if _, ok := stats["error"]; !ok {
		t.Error("Expected an error entry for a sealed vault")
	}

	disabled, _ := NewClient(config.VaultConfig{Enabled: false})
	if st := disabled.GetStats(); st["healthy"] != true || st["enabled"] != false {
		t.Errorf("Unexpected stats for disabled client: %v", st)
	}
}
