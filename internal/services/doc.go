// Package services defines shared utilities consumed by the watch sessions and
// the artifact sink integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, watched roots, and lifecycle
//     phases for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently in the session journal and notifications.
//
// Sink implementations live in subpackages (eyes, baseline).
package services
