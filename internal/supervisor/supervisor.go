// Package supervisor owns the registry of running sessions. It starts one
// session controller per watched root, expands glob patterns into roots as
// matching directories appear, and coordinates global shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"imagefeeder/internal/config"
	"imagefeeder/internal/gate"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/session"
	"imagefeeder/internal/watcher"
)

// ErrStopped is returned by Watch after Stop.
var ErrStopped = errors.New("supervisor stopped")

// DefaultTick is the liveness polling interval used by Run.
const DefaultTick = time.Second

// Supervisor tracks active sessions and glob anchors.
type Supervisor struct {
	cfg     *config.Config
	deps    session.Dependencies
	anchors session.PathSource
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	active   map[string]*session.Controller
	watching []watcher.Observation
	results  []session.Result
}

// New builds a supervisor. deps.Gate defaults to a gate sized from the
// configured session limit and deps.Paths to an observer built from cfg.
func New(cfg *config.Config, deps session.Dependencies) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	deps.Logger = logger
	if deps.Gate == nil {
		deps.Gate = gate.New(cfg.Session.MaxConcurrentSessions)
	}
	if deps.Paths == nil {
		deps.Paths = NewSource(cfg, logger, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:     cfg,
		deps:    deps,
		anchors: NewSource(cfg, logger, true),
		logger:  logging.NewComponentLogger(logger, "supervisor"),
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*session.Controller),
	}
}

// NewSource maps the watch configuration onto observer options. dirsOnly
// observers report directories only and are used for glob anchors.
func NewSource(cfg *config.Config, logger *slog.Logger, dirsOnly bool) watcher.Source {
	return watcher.Source{Options: watcher.Options{
		Mode:            cfg.Watch.Mode,
		PollInterval:    cfg.PollInterval(),
		SettleDelay:     cfg.SettleDelay(),
		IncludeExisting: cfg.Watch.IngestExisting,
		DirsOnly:        dirsOnly,
		Logger:          logger,
	}}
}

// Gate returns the admission gate shared by all sessions.
func (s *Supervisor) Gate() *gate.Gate { return s.deps.Gate }

// Watch starts watching pattern. A plain directory starts a session right
// away. A pattern with glob metacharacters is anchored at its longest existing
// literal prefix, and a session starts for every directory under the anchor
// that matches the pattern, including directories created later.
func (s *Supervisor) Watch(pattern string) error {
	pattern = filepath.Clean(pattern)
	if !hasMeta(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			return fmt.Errorf("watch %s: %w", pattern, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("watch %s: not a directory", pattern)
		}
		return s.start(pattern, "")
	}

	anchor := Anchor(pattern)
	info, err := os.Stat(anchor)
	if err != nil {
		return fmt.Errorf("watch %s: anchor %s: %w", pattern, anchor, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: anchor %s is not a directory", pattern, anchor)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	obs, err := s.anchors.Observe(s.ctx, anchor, func(ev watcher.Event) {
		if !ev.IsDir {
			return
		}
		if ok, _ := filepath.Match(pattern, ev.Path); !ok {
			return
		}
		if err := s.start(ev.Path, anchor); err != nil && !errors.Is(err, ErrStopped) {
			logging.WarnWithContext(s.logger, "failed to start session for matched directory", "supervisor_start_failed",
				logging.String(logging.FieldRoot, ev.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "directory is not watched"),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", pattern, err)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		obs.Stop()
		return ErrStopped
	}
	s.watching = append(s.watching, obs)
	s.mu.Unlock()

	s.logger.Info("watching for matching directories",
		logging.String("pattern", pattern),
		logging.String("anchor", anchor),
		logging.String(logging.FieldEventType, "supervisor_anchor_started"),
	)
	return nil
}

func (s *Supervisor) start(path, anchor string) error {
	root, err := session.NewRoot(path, anchor, s.cfg.Watch)
	if err != nil {
		return err
	}
	key := rootKey(root.Path)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, dup := s.active[key]; dup {
		s.mu.Unlock()
		s.logger.Debug("root already watched", logging.String(logging.FieldRoot, root.Path))
		return nil
	}
	ctrl := session.NewController(s.cfg, root, s.deps)
	s.active[key] = ctrl
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("session started",
		logging.String(logging.FieldRoot, root.Path),
		logging.String(logging.FieldSessionID, ctrl.ID()),
		logging.String(logging.FieldEventType, "supervisor_session_started"),
	)
	go func() {
		defer s.wg.Done()
		result := ctrl.Run(s.ctx)
		s.mu.Lock()
		delete(s.active, key)
		s.results = append(s.results, result)
		s.mu.Unlock()
	}()
	return nil
}

// Running reports whether any session or glob anchor is still active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0 || len(s.watching) > 0
}

// Active returns the running controllers.
func (s *Supervisor) Active() []*session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Controller, 0, len(s.active))
	for _, ctrl := range s.active {
		out = append(out, ctrl)
	}
	return out
}

// Results returns the results of finished sessions in completion order.
func (s *Supervisor) Results() []session.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Result(nil), s.results...)
}

// Run polls liveness every tick until nothing is running or ctx is done, then
// stops everything. It returns the results of all sessions.
func (s *Supervisor) Run(ctx context.Context, tick time.Duration) []session.Result {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for s.Running() {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested", logging.String(logging.FieldEventType, "supervisor_shutdown"))
			s.Stop()
			return s.Results()
		case <-ticker.C:
		}
	}
	s.Stop()
	return s.Results()
}

// Stop cancels every session, stops glob anchors, and waits for all sessions
// to reach a terminal directory. It is safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	watching := s.watching
	s.watching = nil
	s.mu.Unlock()

	for _, obs := range watching {
		obs.Stop()
	}
	s.cancel()
	s.wg.Wait()
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[`)
}

// Anchor returns the leading path components of pattern that contain no glob
// metacharacters. A pattern without metacharacters is its own anchor.
func Anchor(pattern string) string {
	dir := pattern
	for hasMeta(dir) {
		dir = filepath.Dir(dir)
	}
	return dir
}

// rootKey normalizes a root path so equivalent spellings share one session.
func rootKey(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}
