// Package audio handles capture-side buffering and WAV framing.
// ChunkBuffer concatenates fragments in arrival order; EncodeWAV wraps raw
// PCM in a RIFF header and GetWAVInfo reads duration back out of one.
package audio
