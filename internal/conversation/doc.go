// Package conversation holds the ordered, append-only message log of a chat
// session and an optional JSONL transcript that mirrors it to disk.
package conversation

// Compile-time interface compliance checks.
var _ Recorder = (*Transcript)(nil)
