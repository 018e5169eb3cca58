// Package session drives one watched root through its lifecycle.
//
// A Controller acquires an admission slot from the shared gate, opens a remote
// session on the artifact sink, and moves every file that appears under the
// root into a staging directory. A single consumer goroutine feeds the staged
// files to an ordering buffer which forwards them to the sink in ascending
// sequence order. When the sentinel file arrives (or the process shuts down)
// the controller stops the observer, flushes the buffer, closes or aborts the
// remote session, releases its slot, and relocates the staging directory into
// the success or failure directory chosen by the session Outcome.
//
// Per-file problems (a vanished file, a name without a sequence index, an
// artifact the sink does not recognise) are logged and skipped. Errors that end
// a session are captured in Result and never returned to the caller.
package session
