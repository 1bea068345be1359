// Package config provides 12-factor configuration for the request engine.
//
// Configuration is loaded from environment variables with defaults.
//
// Configuration Sections:
//   - Session: worker pool size, request timeout, user agent
//   - Retry: socket-level retry attempts and backoff bounds
//   - RateLimit: outbound token bucket
//   - Breaker: per-host circuit breaker thresholds
//   - TLS: pinned certificate directory/manifest, CA file, client certificate
//   - Challenge: upper bound on waiting for a caller's credential decision
//   - Logging: level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	sess, err := session.New(cfg, session.WithLogger(logger))
package config
