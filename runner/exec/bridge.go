package exec

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// DefaultQuietInterval is how long the bridge waits for the next chunk of
// terminal output before deciding that no more output is imminent.
const DefaultQuietInterval = 1 * time.Second

const readBufSize = 4096

// Outcome is how a run's read loop ended.
// The quiet-interval timeout is a designed completion path, not an error,
// so it is modeled as an outcome rather than folded into the error value.
type Outcome int

const (
	// Unknown means the run failed before or during the relay. It is the
	// outcome whenever Run returns a non-nil error.
	Unknown Outcome = iota
	// Completed means the interpreter exited and closed its terminal.
	Completed
	// TimedOut means the quiet interval elapsed with no output.
	// The interpreter may still have been running; the bridge kills it.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Unknown:
		return "unknown"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("invalid(%d)", int(o))
}

// Bridge runs one code payload at a time in an interpreter attached to a
// pseudo-terminal and relays the terminal output to a sink. A single Bridge
// is shared by all connections; every run materializes its own uniquely-named
// unit file, so concurrent runs never collide.
type Bridge struct {
	Log *zap.SugaredLogger

	// Interpreter is the binary invoked with the unit file path as its only argument.
	Interpreter string
	// UnitSuffix is the file suffix for materialized units, e.g. ".js".
	UnitSuffix string
	// WorkDir is where unit files are written. Must exist.
	WorkDir string
	// QuietInterval bounds the wait for the next chunk of output.
	// Zero means DefaultQuietInterval.
	QuietInterval time.Duration

	// Procs, if set, tracks the spawned process for the lifetime of the run
	// so it can be interrupted from outside the connection.
	Procs *Registry
}

// Run executes code and writes each chunk of terminal output to sink, in
// production order, as it is produced. It returns when the interpreter closes
// its terminal, when no output arrives within the quiet interval, or when ctx
// is canceled. On every path the unit file is removed and the interpreter is
// killed and reaped; nothing leaks past Run.
//
// A spawn failure is reported to sink as a diagnostic frame so the client
// sees it, and returned as an error. The returned Outcome is Unknown
// whenever the error is non-nil.
func (b *Bridge) Run(ctx context.Context, code string, sink io.Writer) (Outcome, error) {
	quiet := b.QuietInterval
	if quiet == 0 {
		quiet = DefaultQuietInterval
	}

	u, err := writeUnit(b.WorkDir, b.UnitSuffix, code)
	if err != nil {
		return Unknown, err
	}
	defer func() {
		if err := u.remove(); err != nil {
			b.Log.Debugf("error removing unit file: %s", err)
		}
	}()

	cmd := exec.Command(b.Interpreter, u.path)
	f, err := pty.Start(cmd)
	if err != nil {
		fmt.Fprintf(sink, "failed to start %s: %s\r\n", b.Interpreter, err)
		return Unknown, fmt.Errorf("starting interpreter: %w", err)
	}
	b.Log.Debugf("spawned %s %s with pid %d", b.Interpreter, u.path, cmd.Process.Pid)

	if b.Procs != nil {
		b.Procs.add(u.path, cmd.Process)
		defer b.Procs.remove(u.path)
	}

	defer func() {
		f.Close()
		cmd.Process.Kill()
		cmd.Wait()
	}()

	// The pty has no read deadline, so a goroutine pulls chunks off it and
	// the select below bounds the wait. done unblocks a pending send when
	// the loop has already exited.
	done := make(chan struct{})
	defer close(done)
	readCh := make(chan []byte)
	go func() {
		defer close(readCh)
		buf := make([]byte, readBufSize)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case readCh <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				// Linux reports a closed pty slave as EIO rather than EOF,
				// so any error here means end-of-stream.
				return
			}
		}
	}()

	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-readCh:
			if !ok {
				b.Log.Debug("interpreter closed its terminal")
				return Completed, nil
			}
			if _, err := sink.Write(chunk); err != nil {
				return Unknown, fmt.Errorf("forwarding output frame: %w", err)
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		case <-timer.C:
			b.Log.Debugf("no output for %s, ending relay", quiet)
			return TimedOut, nil
		case <-ctx.Done():
			return Unknown, ctx.Err()
		}
	}
}
