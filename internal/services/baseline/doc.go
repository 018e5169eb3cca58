// Package baseline implements sink.ArtifactSink on the local filesystem.
//
// The first closed session for a given app, test and host environment records
// its ordered list of artifact tags and SHA-256 digests as the baseline. Later
// sessions with the same identity match when the list is identical and
// mismatch otherwise. Only payloads that sniff as images are accepted.
package baseline
