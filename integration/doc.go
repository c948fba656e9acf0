//go:build integration

// Package integration provides integration tests for studycache.
//
// These tests require Docker. They start a real OCI registry and a Redis
// server using testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
