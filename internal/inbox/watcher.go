// Package inbox ingests transcripts dropped into a folder.
//
// An external recognizer writes one .txt file per note. Each file is run
// through the typed-note pipeline and renamed to .done on success, or to
// .failed when its content can never be accepted. Files that fail for
// other reasons stay in place and are retried on the next start.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
)

const (
	transcriptExt = ".txt"
	doneExt       = ".done"
	failedExt     = ".failed"

	// DefaultSettle is how long a file must stay quiet before it is read.
	DefaultSettle = 300 * time.Millisecond
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Processor runs a typed note through the pipeline.
type Processor interface {
	ProcessText(ctx context.Context, text string) (notes.Outcome, error)
}

// Result reports one ingested file.
type Result struct {
	Path    string
	Outcome notes.Outcome
	Err     error
}

// Watcher watches a directory for transcripts.
type Watcher struct {
	dir      string
	proc     Processor
	logger   *zap.Logger
	settle   time.Duration
	onResult func(Result)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithSettle sets the quiet period before a changed file is read.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// OnResult registers a callback invoked after each file is handled.
func OnResult(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New returns a watcher for dir.
func New(dir string, proc Processor, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	w := &Watcher{
		dir:    dir,
		proc:   proc,
		logger: zap.NewNop(),
		settle: DefaultSettle,
		timers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run ingests transcripts already in the directory, then watches for new
// ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	ready := make(chan string, 16)
	// done releases settle timers that fire after Run has returned.
	done := make(chan struct{})
	defer close(done)
	defer w.stopTimers()

	// Files present before the watch was added.
	if err := w.Drain(ctx); err != nil {
		w.logger.Warn("initial inbox scan failed", zap.Error(err))
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isTranscript(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(event.Name, ready, done)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		case path := <-ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			w.handle(ctx, path)
		}
	}
}

// Drain ingests every transcript currently in the directory.
func (w *Watcher) Drain(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*"+transcriptExt))
	if err != nil {
		return err
	}
	for _, p := range paths {
		if !isTranscript(p) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.handle(ctx, p)
	}
	return nil
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string, ready chan<- string, done <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

// ProcessFile ingests one transcript file and renames it.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (notes.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return notes.Outcome{}, fmt.Errorf("read transcript: %w", err)
	}

	out, err := w.proc.ProcessText(ctx, string(data))
	switch {
	case err == nil:
		return out, w.rename(path, doneExt)
	case permanent(err):
		if rerr := w.rename(path, failedExt); rerr != nil {
			return notes.Outcome{}, errors.Join(err, rerr)
		}
		return notes.Outcome{}, err
	}
	return notes.Outcome{}, err
}

func (w *Watcher) handle(ctx context.Context, path string) {
	log := w.logger.With(zap.String("file", filepath.Base(path)))
	out, err := w.ProcessFile(ctx, path)
	if err != nil {
		log.Warn("inbox transcript not ingested", zap.Error(err))
	} else {
		log.Info("inbox transcript ingested",
			zap.String("voice_note_id", out.VoiceNote.ID),
			zap.Int("entities", len(out.Entities)))
	}
	if w.onResult != nil {
		w.onResult(Result{Path: path, Outcome: out, Err: err})
	}
}

func (w *Watcher) rename(path, ext string) error {
	target := strings.TrimSuffix(path, transcriptExt) + ext
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("rename transcript: %w", err)
	}
	return nil
}

// permanent reports whether retrying the same content cannot succeed.
func permanent(err error) bool {
	return errors.Is(err, notes.ErrTextTooShort) || errors.Is(err, capture.ErrNoSpeechDetected)
}

func isTranscript(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, transcriptExt) && !strings.HasPrefix(base, ".")
}
