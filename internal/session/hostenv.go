package session

import (
	"path/filepath"
	"strings"

	"imagefeeder/internal/config"
	"imagefeeder/internal/sink"
)

// HostEnvironment derives the host OS and application from the nearest path
// component with more than three sep-separated fields. The second- and
// third-to-last fields are returned. Both results are empty when no component
// qualifies or sep is empty.
func HostEnvironment(path, sep string) (hostOS, hostApp string) {
	if sep == "" {
		return "", ""
	}
	path = filepath.Clean(path)
	for {
		fields := strings.Split(filepath.Base(path), sep)
		if len(fields) > 3 {
			return fields[len(fields)-3], fields[len(fields)-2]
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", ""
		}
		path = parent
	}
}

// Info builds the sink session description for root. Explicit settings win over
// values derived from the path.
func Info(root Root, cfg config.Session) sink.SessionInfo {
	hostOS, hostApp := HostEnvironment(root.Path, cfg.HostSeparator)
	if cfg.HostOS != "" {
		hostOS = cfg.HostOS
	}
	if cfg.HostApp != "" {
		hostApp = cfg.HostApp
	}
	testName := cfg.TestName
	if testName == "" {
		testName = root.Path
	}
	return sink.SessionInfo{
		AppName:  cfg.AppName,
		TestName: testName,
		HostOS:   hostOS,
		HostApp:  hostApp,
		BatchID:  cfg.Batch,
	}
}
