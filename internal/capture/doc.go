// Package capture records microphone audio for one start/stop session.
// A Device hands out exclusive Streams of encoded fragments; a Recorder
// buffers those fragments in arrival order and, on Stop, assembles them into
// a single Artifact that is passed to a Sink for upload.
package capture
