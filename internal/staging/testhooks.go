package staging

import "os"

// removeFile deletes a destination that is about to be replaced.
// It is a package-level variable so tests can simulate concurrent actors.
var removeFile = os.Remove

// SetRemoveForTests overrides the destination remover during tests.
func SetRemoveForTests(fn func(string) error) func() {
	previous := removeFile
	removeFile = fn
	return func() {
		removeFile = previous
	}
}
