// Package preflight provides readiness checks for the filesystem paths and the
// artifact sink that ImageFeeder depends on.
//
// The CLI "imagefeeder preflight" command prints every result, and the watch
// command runs the same checks before starting sessions so a run does not
// begin against a directory it cannot write or a sink it cannot reach.
package preflight
