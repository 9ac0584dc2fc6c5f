// Package storage writes uploaded audio artifacts to a local directory.
//
// The default TimestampNamer reproduces audio_<epochMillis>.wav names, so two
// uploads stored within the same millisecond share a name and the later write
// wins. UUIDNamer avoids the collision.
package storage
