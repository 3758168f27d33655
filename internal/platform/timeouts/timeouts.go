// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 10 * time.Second

// AuthorizationServer caps a single call to the authorization server admin API.
const AuthorizationServer = 5 * time.Second

// HealthProbe caps one gRPC health check round trip.
const HealthProbe = time.Second
