// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/pageinsights/pageinsights-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	t.Run("StringOperations", func(t *testing.T) {
		testStringOperations(t, factory)
	})
	t.Run("KeyOperations", func(t *testing.T) {
		testKeyOperations(t, factory)
	})
	t.Run("TTLOperations", func(t *testing.T) {
		testTTLOperations(t, factory)
	})
	t.Run("PatternOperations", func(t *testing.T) {
		testPatternOperations(t, factory)
	})
	t.Run("HealthCheck", func(t *testing.T) {
		testHealthCheck(t, factory)
	})
}

func testStringOperations(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"Overwrite", testOverwrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:string"
	value := []byte("hello world")

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != string(value) {
		t.Errorf("Expected %q, got %q", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "does:not:exist")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "test:overwrite"

	if err := store.Set(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, key, []byte("second")); err != nil {
		t.Fatalf("Second set failed: %v", err)
	}

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(result) != "second" {
		t.Errorf("Expected overwritten value, got %q", result)
	}
}

func testKeyOperations(t *testing.T, factory StoreFactory) {
	t.Run("DelExists", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Set(ctx, "k1", []byte("a")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := store.Set(ctx, "k2", []byte("b")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		count, err := store.Exists(ctx, "k1", "k2", "k3")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2 existing keys, got %d", count)
		}

		deleted, err := store.Del(ctx, "k1", "k3")
		if err != nil {
			t.Fatalf("Del failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("Expected 1 deleted key, got %d", deleted)
		}

		if _, err := store.Get(ctx, "k1"); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Expected k1 to be gone, got: %v", err)
		}
		if _, err := store.Get(ctx, "k2"); err != nil {
			t.Fatalf("Expected k2 to survive: %v", err)
		}
	})
}

func testTTLOperations(t *testing.T, factory StoreFactory) {
	t.Run("Expiry", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		ctx := context.Background()
		key := "test:ttl"

		if err := store.Set(ctx, key, []byte("v"), 50*time.Millisecond); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		if _, err := store.Get(ctx, key); err != nil {
			t.Fatalf("Expected key before expiry: %v", err)
		}

		time.Sleep(80 * time.Millisecond)

		if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Expected key to expire, got: %v", err)
		}
	})

	t.Run("Expire", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		ctx := context.Background()
		key := "test:expire"

		if err := store.Set(ctx, key, []byte("v")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		ok, err := store.Expire(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Expire failed: %v", err)
		}
		if !ok {
			t.Fatal("Expected Expire to apply to existing key")
		}

		ttl, err := store.TTL(ctx, key)
		if err != nil {
			t.Fatalf("TTL failed: %v", err)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("Expected TTL in (0, 1m], got %v", ttl)
		}

		ok, err = store.Expire(ctx, "missing", time.Minute)
		if err != nil {
			t.Fatalf("Expire on missing key failed: %v", err)
		}
		if ok {
			t.Error("Expected Expire on missing key to report false")
		}
	})
}

func testPatternOperations(t *testing.T, factory StoreFactory) {
	t.Run("Keys", func(t *testing.T) {
		store := factory(t)
		defer store.Close()
		ctx := context.Background()

		seed := map[string]string{
			"pages:acme:posts:1:15":     "a",
			"pages:acme:posts:2:15":     "b",
			"pages:acme:followers:1:20": "c",
			"pages:other:posts:1:15":    "d",
			"page:acme":                 "e",
		}
		for k, v := range seed {
			if err := store.Set(ctx, k, []byte(v)); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}

		keys, err := store.Keys(ctx, "pages:acme:*")
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		sort.Strings(keys)

		want := []string{
			"pages:acme:followers:1:20",
			"pages:acme:posts:1:15",
			"pages:acme:posts:2:15",
		}
		if len(keys) != len(want) {
			t.Fatalf("Expected %d keys, got %d: %v", len(want), len(keys), keys)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("Expected key %q, got %q", want[i], keys[i])
			}
		}
	})
}

func testHealthCheck(t *testing.T, factory StoreFactory) {
	store := factory(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
