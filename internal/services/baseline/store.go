package baseline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagefeeder/internal/sink"
)

const manifestName = "manifest.json"

// Entry is one artifact in a recorded sequence.
type Entry struct {
	Tag    string `json:"tag"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// Manifest is the stored baseline for one session identity.
type Manifest struct {
	AppName   string    `json:"app_name"`
	TestName  string    `json:"test_name"`
	HostOS    string    `json:"host_os,omitempty"`
	HostApp   string    `json:"host_app,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Store keeps baselines under a directory.
type Store struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*pending
	// manifests serializes read-compare-write per identity within the process.
	manifests sync.Mutex
}

type pending struct {
	info    sink.SessionInfo
	entries []Entry
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir, sessions: make(map[string]*pending)}
}

// Dir returns the baseline directory.
func (s *Store) Dir() string { return s.dir }

// OpenSession starts collecting artifacts.
func (s *Store) OpenSession(_ context.Context, info sink.SessionInfo) (sink.Handle, error) {
	h := sink.Handle{ID: uuid.NewString(), Info: info}
	s.mu.Lock()
	s.sessions[h.ID] = &pending{info: info}
	s.mu.Unlock()
	return h, nil
}

// Submit records the digest of an image payload.
func (s *Store) Submit(_ context.Context, h sink.Handle, data []byte, tag string) error {
	if kind := http.DetectContentType(data); !strings.HasPrefix(kind, "image/") {
		return fmt.Errorf("%s (%s): %w", tag, kind, sink.ErrUnrecognizedArtifact)
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[h.ID]
	if !ok {
		return fmt.Errorf("baseline: unknown session %q", h.ID)
	}
	p.entries = append(p.entries, Entry{Tag: tag, SHA256: hex.EncodeToString(sum[:]), Size: len(data)})
	return nil
}

// CloseSession records a new baseline or compares against the existing one.
func (s *Store) CloseSession(_ context.Context, h sink.Handle) (sink.Verdict, error) {
	p, err := s.take(h.ID)
	if err != nil {
		return sink.VerdictUnknown, err
	}

	s.manifests.Lock()
	defer s.manifests.Unlock()

	path := s.ManifestPath(p.info)
	existing, err := readManifest(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m := Manifest{
			AppName:   p.info.AppName,
			TestName:  p.info.TestName,
			HostOS:    p.info.HostOS,
			HostApp:   p.info.HostApp,
			CreatedAt: time.Now().UTC(),
			Entries:   p.entries,
		}
		if err := writeManifest(path, m); err != nil {
			return sink.VerdictUnknown, err
		}
		return sink.NewBaseline, nil
	case err != nil:
		return sink.VerdictUnknown, err
	}

	if equalEntries(existing.Entries, p.entries) {
		return sink.Matched, nil
	}
	return sink.Mismatched, nil
}

// AbortSession discards collected artifacts.
func (s *Store) AbortSession(_ context.Context, h sink.Handle) error {
	_, err := s.take(h.ID)
	return err
}

// Check verifies the baseline directory is writable.
func (s *Store) Check(context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create baseline directory: %w", err)
	}
	probe, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("baseline directory not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// ManifestPath returns where the baseline for info is stored.
func (s *Store) ManifestPath(info sink.SessionInfo) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{info.AppName, info.TestName, info.HostOS, info.HostApp}, "\x00")))
	return filepath.Join(s.dir, sanitize(info.AppName), hex.EncodeToString(sum[:8]), manifestName)
}

func (s *Store) take(id string) (*pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("baseline: unknown session %q", id)
	}
	delete(s.sessions, id)
	return p, nil
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode baseline %s: %w", path, err)
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create baseline directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit baseline: %w", err)
	}
	return nil
}

func equalEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Tag != b[i].Tag || a[i].SHA256 != b[i].SHA256 {
			return false
		}
	}
	return true
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
