// Package eyes implements sink.ArtifactSink against a remote visual comparison
// service speaking a small JSON session API.
//
// A session is opened with POST /api/sessions, artifacts are uploaded as raw
// bodies to /api/sessions/{id}/artifacts, and POST /api/sessions/{id}/close
// returns the verdict. DELETE /api/sessions/{id} discards an incomplete session.
// Every request carries the configured API key in the X-Api-Key header. Uploads
// can be rate limited with golang.org/x/time/rate.
package eyes
