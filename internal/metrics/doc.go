// Package metrics exposes the bridge's Prometheus metrics.
package metrics
