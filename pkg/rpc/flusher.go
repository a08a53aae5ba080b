package rpc

import (
	"io"
	"net/http"
	"sync"
)

// writeFlusher couples a writer with a flush after every write, when the
// underlying writer supports flushing. Streaming HTTP responses need this so
// that chunks reach the client as they are produced rather than when the
// handler returns.
type writeFlusher struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

var _ io.Writer = (*writeFlusher)(nil)

func newWriteFlusher(w io.Writer) *writeFlusher {
	wf := &writeFlusher{w: w}
	if f, ok := w.(http.Flusher); ok {
		wf.flusher = f
	}
	return wf
}

func (wf *writeFlusher) Write(p []byte) (n int, err error) {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	n, err = wf.w.Write(p)
	if err == nil && wf.flusher != nil {
		wf.flusher.Flush()
	}
	return n, err
}

func (wf *writeFlusher) Flush() {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if wf.flusher != nil {
		wf.flusher.Flush()
	}
}
