package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-dashboard/config"
)

func TestNewCacheServiceDisabled(t *testing.T) {
	cs, err := NewCacheService(config.RedisConfig{Enabled: false})
	if err == nil {
		t.Fatal("Expected error when redis is disabled")
	}
	if cs != nil {
		t.Error("Expected nil service when redis is disabled")
	}
}

// TestDegradedModeFailsFast verifies an unreachable Redis yields ErrUnavailable
// instead of blocking on every call
func TestDegradedModeFailsFast(t *testing.T) {
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: "127.0.0.1:1", PoolSize: 1})
	if err != nil {
		t.Fatalf("Expected degraded service, got error %v", err)
	}
	defer cs.Close()

	if cs.IsHealthy() {
		t.Fatal("Expected service to start unhealthy")
	}

	var dest []string
	if err := cs.GetJSON(context.Background(), CatalogKey("pairs"), &dest); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := cs.SetJSON(context.Background(), CatalogKey("pairs"), []string{"EUR/USD"}, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable on set, got %v", err)
	}

	if err := cs.Delete(context.Background(), CatalogKey("pairs")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable on delete, got %v", err)
	}

	stats := cs.GetStats()
	if stats["healthy"] != false || stats["address"] != "127.0.0.1:1" {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestCatalogKeyAndTTL(t *testing.T) {
	if got := CatalogKey("strategies"); got != "catalog:strategies" {
		t.Errorf("Expected catalog:strategies, got %s", got)
	}

	cs := &CacheService{config: config.RedisConfig{}}
	if cs.CatalogTTL() != DefaultCatalogTTL {
		t.Errorf("Expected default TTL, got %v", cs.CatalogTTL())
	}
	cs.config.CatalogTTLSecs = 60
	if cs.CatalogTTL() != time.Minute {
		t.Errorf("Expected 1m TTL, got %v", cs.CatalogTTL())
	}
}
