// Package server exposes the bridge over HTTP: a push stream per session,
// audio ingestion, session management and monitoring endpoints.
package server
