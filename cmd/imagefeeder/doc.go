// Command imagefeeder watches directories for sequentially numbered images,
// forwards them in order to an artifact sink, and files each finished
// directory under DONE or FAILED according to the sink's verdict.
package main
