package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/realdoomsboygaming/Kode-Runner/runner/exec"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Runner is the code-runner server. It accepts WebSocket connections from
// editor front ends, executes the code payloads they send in an interpreter
// under a pseudo-terminal, and streams the terminal output back.
type Runner struct {
	logger *zap.SugaredLogger

	listenAddr    string
	interpreter   string
	unitSuffix    string
	workDir       string
	quietInterval time.Duration

	checkerBin    string
	checkerSuffix string
	checkerArgs   []string

	httpServer *http.Server
	execServer *exec.Server
	checker    *exec.Checker
	procs      *exec.Registry
}

type Option func(r *Runner)

func WithListenAddr(s string) Option {
	return func(r *Runner) {
		r.listenAddr = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l.Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(r *Runner) {
		r.logger = r.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// WithInterpreter sets the interpreter binary and the file suffix for the
// unit files it is given, e.g. ("node", ".js") or ("python3", ".py").
func WithInterpreter(bin, suffix string) Option {
	return func(r *Runner) {
		r.interpreter = bin
		r.unitSuffix = suffix
	}
}

// WithWorkDir sets the directory unit files are written to.
// It is created on Run if it does not exist.
func WithWorkDir(dir string) Option {
	return func(r *Runner) {
		r.workDir = dir
	}
}

func WithQuietInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.quietInterval = d
	}
}

// WithChecker sets the static-analysis binary behind the diagnostics route,
// the file suffix for the units it is given, and any arguments placed before
// the unit path, e.g. ("pyright", ".py", "--outputjson").
func WithChecker(bin, suffix string, args ...string) Option {
	return func(r *Runner) {
		r.checkerBin = bin
		r.checkerSuffix = suffix
		r.checkerArgs = args
	}
}

// New constructs a new runner server.
func New(opts ...Option) (*Runner, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	r := &Runner{
		logger:        logger.Named("runner").Sugar(),
		listenAddr:    "0.0.0.0:8080",
		interpreter:   "node",
		unitSuffix:    ".js",
		workDir:       filepath.Join(os.TempDir(), "kode-runner"),
		quietInterval: exec.DefaultQuietInterval,
		checkerBin:    "pyright",
		checkerSuffix: ".py",
		checkerArgs:   []string{"--outputjson"},
		procs:         exec.NewRegistry(),
	}
	for _, o := range opts {
		o(r)
	}
	r.execServer = &exec.Server{
		Log: r.logger.Named("exec_server"),
		Bridge: &exec.Bridge{
			Log:           r.logger.Named("bridge"),
			Interpreter:   r.interpreter,
			UnitSuffix:    r.unitSuffix,
			WorkDir:       r.workDir,
			QuietInterval: r.quietInterval,
			Procs:         r.procs,
		},
	}
	r.checker = &exec.Checker{
		Log:        r.logger.Named("checker"),
		Bin:        r.checkerBin,
		Args:       r.checkerArgs,
		UnitSuffix: r.checkerSuffix,
		WorkDir:    r.workDir,
	}
	return r, nil
}

func (r *Runner) runHTTPServer() error {
	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}

	tcpListener, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	router := httprouter.New()
	router.GET("/run", r.runWS)
	router.POST("/diagnostics", r.diagnostics)
	router.POST("/interrupt", r.interrupt)
	router.GET("/healthz", r.healthz)

	server := http.Server{Handler: router}
	r.httpServer = &server

	err = server.Serve(tcpListener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Run runs the server and returns once it has stopped.
func (r *Runner) Run() error {
	return r.runHTTPServer()
}

func (r *Runner) runWS(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	r.execServer.ServeHTTP(w, req)
}

// diagnostics runs the configured checker over the code in the request body
// and responds with the checker's output, which for the default pyright
// setup is its JSON diagnostics.
func (r *Runner) diagnostics(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := r.checker.Check(req.Context(), string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(out) == 0 {
		out = []byte(`{"Success":"no output from checker"}`)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(out)
}

// interrupt sends SIGINT to every currently running interpreter process.
// This is how a front end stops a run that is busy producing output.
func (r *Runner) interrupt(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	n := r.procs.Interrupt()
	r.logger.Debugf("interrupted %d processes", n)
	response := struct {
		Interrupted int
	}{
		Interrupted: n,
	}
	b, err := json.Marshal(response)
	if err != nil {
		r.logger.Debugf("error marshaling interrupt response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

func (r *Runner) healthz(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
	response := struct {
		Interpreter string
	}{
		Interpreter: r.interpreter,
	}
	b, err := json.Marshal(response)
	if err != nil {
		r.logger.Debugf("error marshaling healthz response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

func (r *Runner) Stop() error {
	return r.httpServer.Close()
}
