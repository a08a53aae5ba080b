package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vltest/vltest/pkg/logging"
)

// OutputWriter is the daemon's side of a streaming RPC response. Everything
// logged through it lands both in the daemon's console log and, wrapped in
// progress chunks, in the HTTP response being streamed to the client.
type OutputWriter struct {
	sync.Mutex
	*zap.SugaredLogger
	pw *progressWriter
	bw *binaryWriter

	out io.Writer
}

// NewStdoutWriter returns an OutputWriter that logs to the console only and
// discards all client-bound chunks.
func NewStdoutWriter() *OutputWriter {
	pw := &progressWriter{out: io.Discard}
	bw := &binaryWriter{}
	ow := &OutputWriter{
		SugaredLogger: logging.S(),
		out:           io.Discard,
		pw:            pw,
		bw:            bw,
	}
	pw.ow = ow
	bw.ow = ow
	return ow
}

// NewFileOutputWriter returns an OutputWriter that writes progress output to
// w verbatim, one log line per line. The daemon uses it to persist task logs;
// the logs endpoint later wraps each stored line into a progress chunk when
// streaming it to a client.
func NewFileOutputWriter(w io.Writer) *OutputWriter {
	writer := newWriteFlusher(w)

	// progressWriter passes log output through unwrapped.
	progressWriter := &progressWriter{out: writer, raw: true}

	// binaryWriter will emit binary chunks.
	binaryWriter := &binaryWriter{}

	writeSyncer := zapcore.Lock(zapcore.AddSync(progressWriter))

	// this logger has two sinks: stdout and the writeSyncer
	logger := logging.NewLogger(writeSyncer)

	ow := &OutputWriter{
		SugaredLogger: logger.Sugar(),
		out:           writer,
		pw:            progressWriter,
		bw:            binaryWriter,
	}

	// we need to wire this back for the lock.
	progressWriter.ow = ow
	binaryWriter.ow = ow
	return ow
}

// NewOutputWriter returns an OutputWriter bound to an HTTP response, flushing
// after every chunk.
func NewOutputWriter(w http.ResponseWriter, r *http.Request) *OutputWriter {
	w.Header().Set("Content-Type", "application/json")

	httpWriter := newWriteFlusher(w)

	// progressWriter will emit log output as progress messages.
	progressWriter := &progressWriter{out: httpWriter}

	// binaryWriter will emit binary chunks.
	binaryWriter := &binaryWriter{}

	writeSyncer := zapcore.Lock(zapcore.AddSync(progressWriter))

	// this logger has two sinks: stdout and the writeSyncer, wired to the
	// HTTP response.
	logger := logging.NewLogger(writeSyncer).With(zap.String("req_id", r.Header.Get("X-Request-ID")))

	ow := &OutputWriter{
		SugaredLogger: logger.Sugar(),
		out:           httpWriter,
		pw:            progressWriter,
		bw:            binaryWriter,
	}

	// we need to wire this back for the lock.
	progressWriter.ow = ow
	binaryWriter.ow = ow
	return ow
}

// Discard returns an OutputWriter that swallows everything. Useful in tests.
func Discard() *OutputWriter {
	pw := &progressWriter{out: io.Discard}
	bw := &binaryWriter{}
	ow := &OutputWriter{
		SugaredLogger: zap.NewNop().Sugar(),
		out:           io.Discard,
		pw:            pw,
		bw:            bw,
	}
	pw.ow = ow
	bw.ow = ow
	return ow
}

type progressWriter struct {
	ow  *OutputWriter
	out io.Writer

	// raw passes writes through without chunk framing; used when the
	// destination is a log file rather than an RPC response.
	raw bool
}

var _ io.Writer = (*progressWriter)(nil)

// Write on the progressWriter wraps the incoming write into a progress
// message.
func (w *progressWriter) Write(p []byte) (n int, err error) {
	if p == nil {
		return 0, nil
	}

	if w.raw {
		w.ow.Lock()
		defer w.ow.Unlock()
		return w.out.Write(p)
	}

	msg := Chunk{Type: ChunkTypeProgress, Payload: p}
	json, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	w.ow.Lock()
	defer w.ow.Unlock()

	return w.out.Write(json)
}

// infoWriter implements io.Writer, and turns all writes into Info log
// statements in the underlying logger.
type infoWriter struct{ ow *OutputWriter }

var _ io.Writer = (*infoWriter)(nil)

func (iw *infoWriter) Write(p []byte) (n int, err error) {
	iw.ow.Info(string(p))
	return len(p), nil
}

// InfoWriter returns an io.Writer that turns all writes into Info log
// statements in the underlying logger.
func (ow *OutputWriter) InfoWriter() io.Writer {
	return &infoWriter{ow}
}

// stdoutWriter implements io.Writer, and turns all writes into stdout writes,
// piping them to the underlying progressWriter, so that they're sent to the
// client.
type stdoutWriter struct{ ow *OutputWriter }

var _ io.Writer = (*stdoutWriter)(nil)

func (sw *stdoutWriter) Write(p []byte) (n int, err error) {
	_, _ = os.Stdout.Write(p)
	return sw.ow.pw.Write(p)
}

// StdoutWriter returns an io.Writer that prints all writes into Stdout, and
// sends them to the client as a progress chunk.
func (ow *OutputWriter) StdoutWriter() io.Writer {
	return &stdoutWriter{ow}
}

// binaryWriter implements io.Writer, and passes all writes to
// OutputWriter.WriteBinary() to marshal into binary chunks.
type binaryWriter struct{ ow *OutputWriter }

var _ io.Writer = (*binaryWriter)(nil)

func (bw *binaryWriter) Write(p []byte) (n int, err error) {
	return bw.ow.WriteBinary(p)
}

func (ow *OutputWriter) BinaryWriter() io.Writer {
	return ow.bw
}

// With returns a new OutputWriter, replacing the SugaredLogger with the
// result from delegating to SugaredLogger.With.
func (ow *OutputWriter) With(args ...interface{}) *OutputWriter {
	return &OutputWriter{
		SugaredLogger: ow.SugaredLogger.With(args...),
		out:           ow.out,
		pw:            ow.pw,
		bw:            ow.bw,
	}
}

func (ow *OutputWriter) WriteProgress(b []byte) (n int, err error) {
	return ow.pw.Write(b)
}

func (ow *OutputWriter) WriteBinary(b []byte) (n int, err error) {
	msg := Chunk{Type: ChunkTypeBinary, Payload: b}
	json, err := json.Marshal(msg)
	if err != nil {
		logging.S().Errorw("could not write binary", "err", err)
		return 0, err
	}

	ow.Lock()
	defer ow.Unlock()

	n, err = ow.out.Write(json)
	if err != nil {
		logging.S().Errorw("could not write binary", "err", err)
		return 0, err
	}

	return n, err
}

func (ow *OutputWriter) WriteResult(res interface{}) {
	msg := Chunk{Type: ChunkTypeResult, Payload: res}
	json, err := json.Marshal(msg)
	if err != nil {
		logging.S().Errorw("could not write result", "err", err)
		return
	}

	ow.Lock()
	defer ow.Unlock()

	_, err = ow.out.Write(json)
	if err != nil {
		logging.S().Errorw("could not write result", "err", err)
	}
}

func (ow *OutputWriter) WriteError(message string, keysAndValues ...interface{}) {
	ow.Warnw(message, keysAndValues...)

	if len(keysAndValues) > 0 {
		b := &strings.Builder{}
		for i := 0; i < len(keysAndValues); i = i + 2 {
			fmt.Fprintf(b, "%s: %s;", keysAndValues[i], keysAndValues[i+1])
		}
		kvs := b.String()
		message = message + "; " + kvs[:len(kvs)-1]
	}

	pld := Chunk{Type: ChunkTypeError, Error: &Error{message}}
	json, err := json.Marshal(pld)
	if err != nil {
		logging.S().Errorw("could not write error response", "err", err)
		return
	}

	ow.Lock()
	defer ow.Unlock()

	_, err = ow.out.Write(json)
	if err != nil {
		logging.S().Errorw("could not write error response", "err", err)
	}
}

func (ow *OutputWriter) Flush() {
	type flusher interface{ Flush() }
	if f, ok := ow.out.(flusher); ok {
		f.Flush()
	}
}
