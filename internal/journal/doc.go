// Package journal persists watch session lifecycles in SQLite.
//
// Every session writes a row when it starts watching, updates it as it moves
// through its states, records its outcome before the staging directory is
// relocated, and marks it complete afterwards. After a crash the rows that were
// never completed identify staging directories that still need relocation;
// Recover moves them to the recorded terminal directory (or the failure
// directory when no outcome was recorded).
//
// The store mirrors the rest of the repository's SQLite usage: modernc's pure
// Go driver, WAL journaling, busy-retry with bounded backoff, and an embedded
// schema guarded by a version row.
package journal
