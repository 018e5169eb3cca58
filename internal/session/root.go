package session

import (
	"fmt"
	"path/filepath"
	"strings"

	"imagefeeder/internal/config"
)

// Root describes a watched directory and the directories its session writes to.
//
// For a root R discovered under anchor A, every derived directory lives next to
// A: staging is dir(A)/<processing>/<key> and the terminal directories are
// dir(A)/<success|failure>/<key>, where key is base(A) joined with the path of R
// relative to A. For a plain root A == R and the key is base(R).
type Root struct {
	Path          string
	Anchor        string
	Key           string
	ProcessingDir string
	StagingDir    string
	SuccessDir    string
	FailureDir    string
	Sentinel      string
}

// NewRoot derives the session layout for path discovered under anchor. An empty
// anchor means path is watched directly.
func NewRoot(path, anchor string, watch config.Watch) (Root, error) {
	path = filepath.Clean(path)
	if anchor == "" {
		anchor = path
	}
	anchor = filepath.Clean(anchor)

	parent := filepath.Dir(anchor)
	if parent == anchor {
		return Root{}, fmt.Errorf("root %s has no parent directory", anchor)
	}
	rel, err := filepath.Rel(anchor, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Root{}, fmt.Errorf("root %s is not under %s", path, anchor)
	}
	key := filepath.Join(filepath.Base(anchor), rel)
	processing := filepath.Join(parent, watch.ProcessingDirName)

	return Root{
		Path:          path,
		Anchor:        anchor,
		Key:           key,
		ProcessingDir: processing,
		StagingDir:    filepath.Join(processing, key),
		SuccessDir:    filepath.Join(parent, watch.SuccessDirName, key),
		FailureDir:    filepath.Join(parent, watch.FailureDirName, key),
		Sentinel:      watch.DoneFileName,
	}, nil
}

// TerminalDir maps an outcome to its terminal directory.
func (r Root) TerminalDir(o Outcome) string {
	if o == Committed {
		return r.SuccessDir
	}
	return r.FailureDir
}

// IsSentinel reports whether path names the end-of-input file.
func (r Root) IsSentinel(path string) bool {
	return filepath.Base(path) == r.Sentinel
}
