package session

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// watchInterval is how often the live-output file is polled while a
// long-running tool executes.
const watchInterval = 250 * time.Millisecond

// outputWatcher polls a file on a fixed interval and forwards only the bytes
// appended since the previous poll. It has an owned cancellation handle and
// never outlives the session that started it.
type outputWatcher struct {
	toolID   string
	interval time.Duration
	emit     func(toolID, delta string)

	mu     sync.Mutex
	path   string
	offset int64

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newOutputWatcher(toolID, path string, interval time.Duration, emit func(toolID, delta string)) *outputWatcher {
	w := &outputWatcher{
		toolID:   toolID,
		interval: interval,
		emit:     emit,
		path:     path,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *outputWatcher) loop() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			// Final poll so output written just before the tool finished is
			// not lost.
			w.poll()
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *outputWatcher) poll() {
	w.mu.Lock()
	path := w.path
	offset := w.offset
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		// The tool may not have created the file yet.
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() <= offset {
		return
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		slog.Debug("Output watcher seek failed", "path", path, "error", err)
		return
	}

	delta, err := io.ReadAll(f)
	if err != nil {
		slog.Debug("Output watcher read failed", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	w.offset = offset + int64(len(delta))
	w.mu.Unlock()

	if len(delta) > 0 {
		w.emit(w.toolID, string(delta))
	}
}

// Retarget switches the watcher to a new output source, restarting from the
// beginning of the new file.
func (w *outputWatcher) Retarget(path string) {
	w.mu.Lock()
	w.path = path
	w.offset = 0
	w.mu.Unlock()
}

// Stop cancels the watcher and waits for its final poll, so output emitted
// after Stop returns never interleaves with the tool's result. Idempotent.
func (w *outputWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}
