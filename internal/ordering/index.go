package ordering

import (
	"path/filepath"
	"strconv"
)

// ExtractIndex returns the first maximal run of ASCII digits in the base name of
// path, parsed as an unsigned base-10 integer. ok is false when the name has no
// digits or the run does not fit in a uint64.
func ExtractIndex(path string) (index uint64, ok bool) {
	name := filepath.Base(path)
	start := -1
	end := len(name)
	for i := 0; i < len(name); i++ {
		isDigit := name[i] >= '0' && name[i] <= '9'
		if start < 0 {
			if isDigit {
				start = i
			}
			continue
		}
		if !isDigit {
			end = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	value, err := strconv.ParseUint(name[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
