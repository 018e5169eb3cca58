package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"imagefeeder/internal/logging"
)

// Modes accepted by Options.Mode.
const (
	ModePoll   = "poll"
	ModeNative = "native"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	minSettleTick       = 10 * time.Millisecond
)

// Event reports a created path.
type Event struct {
	Path  string
	IsDir bool
}

// Handler receives events on the watcher goroutine.
type Handler func(Event)

// Options configures a Watcher.
type Options struct {
	Mode         string
	PollInterval time.Duration
	// SettleDelay is how long a file must stay unchanged before it is reported.
	SettleDelay time.Duration
	// IncludeExisting reports entries present before Start as if they were new.
	IncludeExisting bool
	// DirsOnly suppresses file events.
	DirsOnly bool
	Logger   *slog.Logger
}

// Watcher observes one root directory.
type Watcher struct {
	root    string
	opts    Options
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	quit    chan struct{}
	done    chan struct{}
	running bool
	mode    string
}

// New returns a stopped watcher for root.
func New(root string, opts Options, handler Handler) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Mode == "" {
		opts.Mode = ModePoll
	}
	return &Watcher{
		root:    root,
		opts:    opts,
		handler: handler,
		logger:  logging.NewComponentLogger(opts.Logger, "watcher").With(logging.String(logging.FieldRoot, root)),
	}
}

// Start begins observing. It fails when root is not a directory. Native mode
// falls back to polling when fsnotify cannot be initialised.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s: not a directory", w.root)
	}

	quit := make(chan struct{})
	done := make(chan struct{})

	var loop func()
	if w.opts.Mode == ModeNative {
		native, err := newNativeLoop(w, quit)
		if err == nil {
			w.mode = ModeNative
			loop = func() { native.run(ctx) }
		} else {
			logging.WarnWithContext(w.logger, "native file notifications unavailable; falling back to polling", "watcher_native_fallback",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches or set watch.mode = \"poll\""),
				logging.String(logging.FieldImpact, "new files are detected at the polling interval"),
			)
		}
	}
	if loop == nil {
		poll := newPollLoop(w, quit)
		w.mode = ModePoll
		loop = func() { poll.run(ctx) }
	}

	w.quit = quit
	w.done = done
	w.running = true
	go func() {
		defer close(done)
		loop()
	}()

	w.logger.Debug("watcher started",
		logging.String("mode", w.mode),
		logging.String(logging.FieldEventType, "watcher_started"),
	)
	return nil
}

// Stop signals the observer goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	done := w.done
	w.running = false
	w.mu.Unlock()

	<-done
	w.logger.Debug("watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
}

// Mode reports the observer implementation in use after Start.
func (w *Watcher) Mode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

func (w *Watcher) emit(ev Event) {
	if ev.IsDir || !w.opts.DirsOnly {
		w.handler(ev)
	}
}

// Observation is a running observer that can be stopped.
type Observation interface {
	Stop()
}

// Source starts filesystem observers with fixed options.
type Source struct {
	Options Options
}

// Observe starts a watcher on root that delivers events to handler.
func (s Source) Observe(ctx context.Context, root string, handler Handler) (Observation, error) {
	w := New(root, s.Options, handler)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
