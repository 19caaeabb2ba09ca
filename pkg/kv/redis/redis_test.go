package redis

import (
	"os"
	"testing"

	"github.com/pageinsights/pageinsights-backend/pkg/kv"
	"github.com/pageinsights/pageinsights-backend/pkg/kv/kvtest"
)

// TestRedisStore runs the conformance suite against a real Redis instance.
// Set REDIS_TEST_ADDR (e.g. localhost:6379) to enable.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set; skipping Redis conformance tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(addr)
		if err != nil {
			t.Fatalf("Failed to connect to Redis at %s: %v", addr, err)
		}
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}
