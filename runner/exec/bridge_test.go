package exec

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var log *zap.SugaredLogger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

// frameRecorder records each Write as one frame, the way the WebSocket sink
// sends one message per Write.
type frameRecorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *frameRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(b))
	return len(b), nil
}

func (r *frameRecorder) concat() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.frames, "")
}

func newTestBridge(t *testing.T, quiet time.Duration) *Bridge {
	return &Bridge{
		Log:           log.Named("bridge"),
		Interpreter:   "sh",
		UnitSuffix:    ".sh",
		WorkDir:       t.TempDir(),
		QuietInterval: quiet,
	}
}

func requireWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "unit files left behind")
}

func TestBridgeRun(t *testing.T) {
	cases := []struct {
		name       string
		code       string
		quiet      time.Duration
		expOutcome Outcome
		expOutput  string
	}{
		{
			name:       "happy case",
			code:       "echo hello",
			quiet:      2 * time.Second,
			expOutcome: Completed,
			expOutput:  "hello",
		},
		{
			name:       "multiple lines arrive in order",
			code:       "printf 'one\\n'; printf 'two\\n'; printf 'three\\n'",
			quiet:      2 * time.Second,
			expOutcome: Completed,
			expOutput:  "one\r\ntwo\r\nthree",
		},
		{
			name:       "partial line without newline is still forwarded",
			code:       "printf 'prompt> '",
			quiet:      2 * time.Second,
			expOutcome: Completed,
			expOutput:  "prompt> ",
		},
		{
			name:       "silent process times out",
			code:       "sleep 30",
			quiet:      300 * time.Millisecond,
			expOutcome: TimedOut,
		},
		{
			name:       "blocked on stdin times out",
			code:       "read line",
			quiet:      300 * time.Millisecond,
			expOutcome: TimedOut,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newTestBridge(t, c.quiet)
			rec := &frameRecorder{}

			outcome, err := b.Run(context.Background(), c.code, rec)
			require.NoError(t, err)
			assert.Equal(t, c.expOutcome, outcome)
			if c.expOutput != "" {
				assert.Contains(t, rec.concat(), c.expOutput)
			}
			requireWorkDirEmpty(t, b.WorkDir)
		})
	}
}

func TestBridgeSpawnFailure(t *testing.T) {
	b := newTestBridge(t, time.Second)
	b.Interpreter = "definitely-not-an-interpreter"
	rec := &frameRecorder{}

	outcome, err := b.Run(context.Background(), "echo hello", rec)
	require.Error(t, err)
	assert.Equal(t, Unknown, outcome)

	// The failure is reported to the client as a diagnostic frame, not
	// silently dropped.
	assert.Contains(t, rec.concat(), "failed to start")
	requireWorkDirEmpty(t, b.WorkDir)
}

func TestBridgeQuietIntervalBound(t *testing.T) {
	quiet := 300 * time.Millisecond
	b := newTestBridge(t, quiet)
	rec := &frameRecorder{}

	start := time.Now()
	outcome, err := b.Run(context.Background(), "sleep 30", rec)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, TimedOut, outcome)
	// The relay must end within threshold plus a startup epsilon. The slack
	// is tight enough that a doubled wait from a timer bug would fail.
	assert.Less(t, elapsed, quiet+700*time.Millisecond)
}

func TestBridgeLateOutputAfterQuietResetsTimer(t *testing.T) {
	// Output that keeps trickling in below the quiet interval keeps the
	// relay alive; the timer is reset on every chunk.
	quiet := 500 * time.Millisecond
	b := newTestBridge(t, quiet)
	rec := &frameRecorder{}

	code := "for i in 1 2 3 4; do echo tick$i; sleep 0.2; done"
	outcome, err := b.Run(context.Background(), code, rec)
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	for _, want := range []string{"tick1", "tick2", "tick3", "tick4"} {
		assert.Contains(t, rec.concat(), want)
	}
	requireWorkDirEmpty(t, b.WorkDir)
}

func TestBridgeContextCanceledMidRun(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	rec := &frameRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	outcome, err := b.Run(ctx, "sleep 30", rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Unknown, outcome)
	requireWorkDirEmpty(t, b.WorkDir)
}

func TestBridgeConcurrentRunsAreIsolated(t *testing.T) {
	// Two runs against the same bridge at overlapping times must not mix
	// output or clobber each other's unit files.
	b := newTestBridge(t, 2*time.Second)

	var wg sync.WaitGroup
	recs := make([]*frameRecorder, 2)
	codes := []string{
		"sleep 0.2; echo alpha-output",
		"sleep 0.2; echo beta-output",
	}
	for i := range recs {
		recs[i] = &frameRecorder{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := b.Run(context.Background(), codes[i], recs[i])
			assert.NoError(t, err)
			assert.Equal(t, Completed, outcome)
		}(i)
	}
	wg.Wait()

	assert.Contains(t, recs[0].concat(), "alpha-output")
	assert.NotContains(t, recs[0].concat(), "beta-output")
	assert.Contains(t, recs[1].concat(), "beta-output")
	assert.NotContains(t, recs[1].concat(), "alpha-output")
	requireWorkDirEmpty(t, b.WorkDir)
}

func TestBridgeRegistersProcessWhileRunning(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	b.Procs = NewRegistry()
	rec := &frameRecorder{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The trap gives the script a visible reaction to SIGINT. The loop
		// sleeps in short slices because sh delivers traps only between
		// foreground commands.
		b.Run(context.Background(), "trap 'echo got-sigint; exit 0' INT; echo ready; while true; do sleep 0.1; done", rec)
	}()

	require.Eventually(t, func() bool {
		return b.Procs.Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	n := b.Procs.Interrupt()
	assert.Equal(t, 1, n)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not end after interrupt")
	}
	assert.Contains(t, rec.concat(), "got-sigint")
	assert.Equal(t, 0, b.Procs.Len())
	requireWorkDirEmpty(t, b.WorkDir)
}

func TestWriteUnit(t *testing.T) {
	dir := t.TempDir()

	u1, err := writeUnit(dir, ".js", "console.log(1)")
	require.NoError(t, err)
	u2, err := writeUnit(dir, ".js", "console.log(2)")
	require.NoError(t, err)

	// Unique names per run, full contents present before the interpreter
	// would see them.
	assert.NotEqual(t, u1.path, u2.path)
	b, err := os.ReadFile(u1.path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b, []byte("console.log(1)")))

	require.NoError(t, u1.remove())
	require.NoError(t, u2.remove())
	requireWorkDirEmpty(t, dir)
}
