package session_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"imagefeeder/internal/config"
	"imagefeeder/internal/gate"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/session"
	"imagefeeder/internal/testsupport"
	"imagefeeder/internal/watcher"
)

// scriptedSource emits one event per name, in order, then idles until stopped.
type scriptedSource struct {
	names []string
}

func (s scriptedSource) Observe(_ context.Context, root string, handler watcher.Handler) (watcher.Observation, error) {
	obs := &scriptedObservation{quit: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(obs.done)
		for _, name := range s.names {
			select {
			case <-obs.quit:
				return
			default:
			}
			handler(watcher.Event{Path: filepath.Join(root, filepath.FromSlash(name))})
		}
		<-obs.quit
	}()
	return obs, nil
}

type scriptedObservation struct {
	once sync.Once
	quit chan struct{}
	done chan struct{}
}

func (o *scriptedObservation) Stop() {
	o.once.Do(func() { close(o.quit) })
	<-o.done
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []session.Result
}

func (n *recordingNotifier) SessionFinished(_ context.Context, r session.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
}

// newRoot creates <tmp>/<name> populated with files and returns its layout.
func newRoot(t *testing.T, cfg *config.Config, name string, files ...string) session.Root {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	for _, f := range files {
		testsupport.WriteFile(t, filepath.Join(dir, filepath.FromSlash(f)), "data:"+f)
	}
	root, err := session.NewRoot(dir, "", cfg.Watch)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return root
}

func newController(cfg *config.Config, root session.Root, artifactSink *testsupport.RecordingSink, source session.PathSource, g *gate.Gate) *session.Controller {
	if g == nil {
		g = gate.New(cfg.Session.MaxConcurrentSessions)
	}
	return session.NewController(cfg, root, session.Dependencies{
		Sink:   artifactSink,
		Paths:  source,
		Gate:   g,
		Logger: logging.NewNop(),
	})
}
