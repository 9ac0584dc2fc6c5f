// Package metrics defines the Prometheus collectors exposed by the ingest server.
package metrics
