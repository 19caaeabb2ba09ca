// Package kv provides a key-value store abstraction with in-memory and
// Redis-backed implementations.
//
// The package defines a Store interface covering the operations the cache
// layer needs: string values with TTL support, bulk deletion, and glob
// pattern key listing for namespace invalidation.
//
// Example usage:
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	ctx := context.Background()
//	if err := store.Set(ctx, "page:acme", []byte("{}"), 5*time.Minute); err != nil {
//		log.Fatal(err)
//	}
//
//	keys, err := store.Keys(ctx, "page:*")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := store.Del(ctx, keys...); err != nil {
//		log.Fatal(err)
//	}
//
// The in-memory implementation provides a first-class development and testing
// experience with full TTL support and background expiration. The Redis
// adapter wraps go-redis/v9 for production use while maintaining the same
// interface; its Keys method uses SCAN with MATCH so pattern listing never
// blocks the server.
package kv
