//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// --- Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error

	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

func skipWithoutDocker(tb testing.TB) {
	tb.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
}

// getRegistry returns the shared registry address, starting the container if needed.
// The container is shared across all tests for performance.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	registryOnce.Do(func() {
		registryAddr, registryErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "registry:2",
			ExposedPorts: []string{"5000/tcp"},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "5000/tcp")
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

// getRedis returns the shared Redis address, starting the container if needed.
func getRedis(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	redisOnce.Do(func() {
		redisAddr, redisErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}, "6379/tcp")
	})
	if redisErr != nil {
		tb.Fatalf("start redis container: %v", redisErr)
	}
	return redisAddr
}

// startContainer starts req and returns the host:port address of port.
// Container cleanup is handled by the testcontainers Reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", fmt.Errorf("resolve port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Client Helpers ---

// newRedisClient returns a client for the shared Redis server.
func newRedisClient(tb testing.TB) *redis.Client {
	tb.Helper()

	client := redis.NewClient(&redis.Options{Addr: getRedis(tb)})
	tb.Cleanup(func() { _ = client.Close() })
	require.NoError(tb, client.Ping(context.Background()).Err(), "ping redis")
	return client
}

// testRepo generates a unique repository for a test to avoid collisions.
func testRepo(addr, testName string) string {
	name := strings.ToLower(strings.NewReplacer("/", "-", "_", "-").Replace(testName))
	return fmt.Sprintf("%s/test/%s", addr, name)
}

// testKey generates a unique Redis key for a test.
func testKey(testName string) string {
	return "studycache:test:" + testName
}
