// Package server implements the HTTP ingest endpoint for recorded audio.
// It accepts multipart uploads on the store-audio route, persists them via
// a storage.Store, serves stored files back, and exposes health, statistics
// and Prometheus metrics endpoints.
package server
