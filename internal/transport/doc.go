// Package transport uploads finished recordings to the ingest endpoint.
// Each upload is a single multipart/form-data request with one "file" part;
// failures are reported to the caller and never retried.
package transport
