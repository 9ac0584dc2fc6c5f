// Package config provides configuration loading and validation for the audio
// ingest server and the recorder client. Files are decoded as YAML or TOML by
// extension, then .env and TRIO_* environment variables are applied on top.
package config
