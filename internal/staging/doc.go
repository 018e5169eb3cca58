// Package staging moves discovered files into a session's processing area and
// relocates the processing area into its terminal directory when the session ends.
//
// MoveFile tolerates the races that come with watching directories other
// processes write to: a destination that is being removed concurrently, a source
// that was already moved, and rename across filesystems. Every wait is bounded
// by a retry.Policy so a stuck filesystem surfaces as an error.
package staging
