// Package daemon coordinates the long-running ImageFeeder process.
//
// It owns the single-instance flock, replays the session journal before any
// new session starts, hands watch patterns to the supervisor, and releases
// everything on shutdown. Session behavior itself lives in the session and
// supervisor packages; the daemon only sequences startup and teardown.
package daemon
