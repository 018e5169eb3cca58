// Package ordering releases staged files to the sink strictly in ascending
// sequence-index order.
//
// The sequence index of a file is the first run of decimal digits in its base
// name. Buffer keeps an index-keyed map and a cursor (the next expected index).
// A file is forwarded as soon as every index between the cursor and its own has
// been forwarded; Flush releases whatever remains at the end of a session,
// skipping gaps. The first file seen for an index wins; later files with the
// same index, or with an index the cursor already passed, are dropped.
package ordering
