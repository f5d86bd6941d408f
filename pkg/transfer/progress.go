package transfer

import (
	"fmt"
	"io"
	"sync"

	"github.com/duke-gcb/ddsclient/pkg/tree"
)

// Watcher receives transfer progress. Implementations must tolerate calls
// from multiple goroutines.
type Watcher interface {
	// Transferring announces that work on a file or folder has started.
	Transferring(node *tree.Node)

	// SentBytes reports bytes moved since the last call.
	SentBytes(n int64)
}

// NullWatcher ignores all progress.
type NullWatcher struct{}

func (NullWatcher) Transferring(*tree.Node) {}
func (NullWatcher) SentBytes(int64)         {}

// ConsoleWatcher renders a single-line progress display, rewriting the
// line as the transfer advances.
type ConsoleWatcher struct {
	mu         sync.Mutex
	out        io.Writer
	verb       string
	totalBytes int64
	sentBytes  int64
	current    string
}

// NewConsoleWatcher makes a watcher that writes progress to out. verb is
// the present participle shown to the user ("Uploading" or "Downloading").
func NewConsoleWatcher(out io.Writer, verb string, totalBytes int64) *ConsoleWatcher {
	return &ConsoleWatcher{out: out, verb: verb, totalBytes: totalBytes}
}

func (w *ConsoleWatcher) Transferring(node *tree.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = node.Path
	w.render()
}

func (w *ConsoleWatcher) SentBytes(n int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sentBytes += n
	w.render()
}

// Done finishes the progress line.
func (w *ConsoleWatcher) Done() {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "\r%s: 100%%%s\n", w.verb, padding)
}

func (w *ConsoleWatcher) render() {
	percent := 100
	if w.totalBytes > 0 {
		percent = int(w.sentBytes * 100 / w.totalBytes)
		if percent > 100 {
			percent = 100
		}
	}
	fmt.Fprintf(w.out, "\r%s: %d%% - %.60s%s", w.verb, percent, w.current, padding)
}

// padding clears leftovers when a long file name is followed by a short one.
const padding = "          "
