// Package testutil provides shared testing helpers for the session core.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetTestRedisAddr returns the Redis address for integration tests, honoring
// REDIS_ADDR and falling back to the conventional local default.
func GetTestRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis reports whether tests must fail (rather than skip) when Redis
// is unavailable. Set REQUIRE_REDIS=1 in CI to catch silently skipped suites.
func requireRedis() bool {
	return os.Getenv("REQUIRE_REDIS") == "1"
}

// SetupTestRedis creates a Redis client for testing. Tests are skipped if
// Redis is not reachable, unless REQUIRE_REDIS=1.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := GetTestRedisAddr()
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   9, // keep test keys away from any local dev data
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: close redis client after ping error: %v", cerr)
		}
		if requireRedis() {
			t.Fatalf("Redis not available for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: close redis client: %v", err)
		}
	})

	return client
}
