// Package notifications delivers session events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. SessionNotifier
// adapts the service to the session controller so every finished session can
// report its outcome, and session errors raise a high-priority alert.
package notifications
