package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
)

// DefaultStopTimeout bounds each wait for a signalled process to exit.
const DefaultStopTimeout = 5 * time.Second

const readBufferSize = 32 * 1024

var (
	// ErrNotIdle is returned by Connect while a process is running or stopping.
	ErrNotIdle = errors.New("session is not idle")
	// ErrClosed is returned once Shutdown has been requested.
	ErrClosed = errors.New("session is closed")
	// ErrStopTimeout is returned when a process outlived both SIGTERM and SIGKILL waits.
	ErrStopTimeout = errors.New("process did not exit in time")
)

// State is the supervisor lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopping // intentional stop in progress
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case ShuttingDown:
		return "ShuttingDown"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Params are the user selections captured at connect time. Restarts reuse them.
type Params struct {
	Context string
	Service string
	Address string
}

// Options configure a single supervisor.
type Options struct {
	// Debug adds lifecycle detail to the session log.
	Debug bool
	// StopTimeout bounds each wait after SIGTERM and after SIGKILL.
	StopTimeout time.Duration
	// Kubectl is the forwarding tool path; empty means "kubectl".
	Kubectl string
}

// Supervisor owns one port-forward process at a time: it spawns it, streams
// its output into the session Log, restarts it after unsolicited exits and
// stops it on request.
type Supervisor struct {
	id      string
	catalog config.ServiceCatalog
	spawner k8s.Spawner
	opts    Options
	log     *Log

	// view is republished under mu after every change of state, params or
	// command; accessors read it without taking mu.
	view atomic.Pointer[snapshot]

	mu           sync.Mutex
	state        State
	params       Params
	svc          config.ServiceDescription
	cmd          k8s.Command
	proc         k8s.Process
	generation   uint64
	exited       chan struct{} // closed after the current generation's exit is handled
	shutdownDone chan struct{}
}

// snapshot is the read-only view served by the accessors.
type snapshot struct {
	state    State
	params   Params
	label    string
	endpoint string
}

// New creates an Idle supervisor.
func New(id string, catalog config.ServiceCatalog, spawner k8s.Spawner, opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if spawner == nil {
		spawner = k8s.ExecSpawner{}
	}
	s := &Supervisor{
		id:      id,
		catalog: catalog,
		spawner: spawner,
		opts:    opts,
		log:     NewLog(),
	}
	s.publishLocked()
	return s
}

// setStateLocked changes the state and republishes the view.
func (s *Supervisor) setStateLocked(state State) {
	s.state = state
	s.publishLocked()
}

func (s *Supervisor) publishLocked() {
	v := &snapshot{state: s.state, params: s.params}
	if s.state == Running {
		v.label = s.cmd.Label
		v.endpoint = net.JoinHostPort(s.params.Address, string(s.svc.Port))
	}
	s.view.Store(v)
}

func (s *Supervisor) ID() string { return s.id }

// Log returns the session log. Consumers only read from it.
func (s *Supervisor) Log() *Log { return s.log }

// State never blocks, even while a restart is spawning.
func (s *Supervisor) State() State { return s.view.Load().state }

// Params returns the selections of the most recent Connect.
func (s *Supervisor) Params() Params { return s.view.Load().params }

// Label identifies the running forward for display, or "" when not running.
func (s *Supervisor) Label() string { return s.view.Load().label }

// Endpoint returns address:port of the running forward, or "".
func (s *Supervisor) Endpoint() string { return s.view.Load().endpoint }

// Connect builds the command for p and spawns it. Catalog and validation
// failures return an InvalidServiceError and spawn failures a SpawnError; in
// both cases the supervisor stays Idle.
func (s *Supervisor) Connect(ctx context.Context, p Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running, Stopping:
		return ErrNotIdle
	case ShuttingDown, Closed:
		return ErrClosed
	}

	svc, err := s.catalog.Lookup(p.Service)
	if err != nil {
		return err
	}
	cmd, err := k8s.BuildCommand(s.opts.Kubectl, p.Context, svc, p.Address)
	if err != nil {
		return err
	}

	s.params = p
	s.svc = svc
	s.cmd = cmd
	s.publishLocked()
	return s.startLocked()
}

// startLocked spawns s.cmd as a new generation. On failure the state is left
// untouched for the caller to decide.
func (s *Supervisor) startLocked() error {
	port := string(s.svc.Port)
	s.log.Infof("Starting process")
	s.log.Infof("Access service using nip.io via HTTPS https://%s.%s.%s.nip.io:%s, HTTP http://%s.%s.%s.nip.io:%s",
		s.params.Service, s.params.Context, s.params.Address, port,
		s.params.Service, s.params.Context, s.params.Address, port)
	s.log.Infof("Access service using IP Only via HTTPS https://%s, HTTP http://%s",
		net.JoinHostPort(s.params.Address, port), net.JoinHostPort(s.params.Address, port))
	s.log.Infof("Connect to %s", net.JoinHostPort(s.params.Address, port))
	if s.opts.Debug {
		s.log.Infof("Command: %s", s.cmd.String())
	}

	proc, err := s.spawner.Spawn(s.cmd.Argv)
	if err != nil {
		if !errors.Is(err, k8s.ErrSpawn) {
			err = &k8s.SpawnError{Argv: s.cmd.Argv, Err: err}
		}
		s.log.Append(SeverityStderr, err.Error())
		logging.LogError("Session %s: spawn failed: %v", s.id, err)
		return err
	}

	s.generation++
	s.proc = proc
	s.exited = make(chan struct{})
	s.setStateLocked(Running)
	logging.LogInfo("Session %s: started %s (generation %d, PID %d)", s.id, s.cmd.Label, s.generation, proc.Pid())

	go s.supervise(s.generation, proc, s.exited)
	return nil
}

// supervise drains both streams of one generation, waits for the process and
// delivers its exit exactly once.
func (s *Supervisor) supervise(generation uint64, proc k8s.Process, exited chan struct{}) {
	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(proc.Stdout(), SeverityStdout, &wg)
	go s.pump(proc.Stderr(), SeverityStderr, &wg)
	wg.Wait()

	status := proc.Wait()
	s.handleExit(generation, status)
	close(exited)
}

func (s *Supervisor) pump(r io.Reader, severity Severity, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := strings.ToValidUTF8(string(buf[:n]), "\uFFFD")
			text = strings.TrimRight(text, "\r\n")
			if text != "" {
				s.log.Append(severity, text)
			}
		}
		if err != nil {
			if err != io.EOF {
				logging.LogDebug("Session %s: %s stream closed: %v", s.id, severity, err)
			}
			return
		}
	}
}

// handleExit restarts the process when the exit was unsolicited and completes
// an intentional stop otherwise. Exits of stale generations and exits during
// shutdown are expected.
func (s *Supervisor) handleExit(generation uint64, status k8s.ExitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.LogDebug("Session %s: generation %d exited: %s", s.id, generation, status)
	if generation != s.generation {
		return
	}
	switch s.state {
	case Stopping:
		// Only a reaped process frees the session for the next Connect.
		s.proc = nil
		s.setStateLocked(Idle)
		s.log.Infof("Process stopped")
		return
	case Running:
	default:
		return
	}

	s.log.Infof("Restart process required")
	s.log.Infof("Previous RC %d", status.Code)
	s.log.Infof("Previous Message %s", status.Reason)
	s.proc = nil

	if err := s.startLocked(); err != nil {
		s.setStateLocked(Idle)
		// Logged after the state change so log followers wake up to see Idle.
		s.log.Infof("Restart failed, process stopped")
	}
}

// Disconnect stops the running process and returns to Idle. It sends SIGTERM,
// waits up to StopTimeout, then SIGKILL and waits again. It is a no-op when
// Idle. If the process outlives both waits the session stays Stopping, and
// Connect keeps failing with ErrNotIdle, until the process is reaped.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return nil
	case ShuttingDown, Closed:
		s.mu.Unlock()
		return ErrClosed
	case Stopping:
		exited := s.exited
		s.mu.Unlock()
		return s.waitExited(ctx, exited)
	}

	// Marked before signalling so the exit is not taken for a crash.
	s.setStateLocked(Stopping)
	proc, exited := s.proc, s.exited
	s.mu.Unlock()

	if s.opts.Debug {
		s.log.Infof("Killing process")
	}
	if err := proc.Terminate(); err != nil {
		logging.LogDebug("Session %s: SIGTERM failed: %v", s.id, err)
	}
	if s.opts.Debug {
		s.log.Infof("Waiting for process to die")
	}
	err := s.awaitStop(ctx, proc, exited)
	if err != nil {
		s.log.Append(SeverityStderr, fmt.Sprintf("Process did not stop: %v", err))
		logging.LogError("Session %s: stop: %v", s.id, err)
	}
	return err
}

// awaitStop waits for exited, escalating to SIGKILL after the first bound.
func (s *Supervisor) awaitStop(ctx context.Context, proc k8s.Process, exited chan struct{}) error {
	err := s.waitExited(ctx, exited)
	if err == nil {
		return nil
	}

	logging.LogInfo("Session %s: process did not stop (%v), sending SIGKILL", s.id, err)
	if killErr := proc.Kill(); killErr != nil {
		logging.LogDebug("Session %s: SIGKILL failed: %v", s.id, killErr)
	}
	return s.waitExited(context.Background(), exited)
}

func (s *Supervisor) waitExited(ctx context.Context, exited chan struct{}) error {
	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown permanently stops the supervisor: it kills any running process,
// waits bounded for it, and moves to Closed. Concurrent and repeated calls
// wait for the first one to finish.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return nil
	case ShuttingDown:
		done := s.shutdownDone
		s.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Set before any signal: a concurrently delivered exit must see it.
	s.setStateLocked(ShuttingDown)
	s.shutdownDone = make(chan struct{})
	proc, exited := s.proc, s.exited
	s.mu.Unlock()

	var err error
	if proc != nil {
		if s.opts.Debug {
			s.log.Infof("Killing process")
		}
		if killErr := proc.Kill(); killErr != nil {
			logging.LogDebug("Session %s: SIGKILL failed: %v", s.id, killErr)
		}
		err = s.waitExited(ctx, exited)
		if err != nil {
			logging.LogError("Session %s: shutdown wait: %v", s.id, err)
		}
	}

	s.mu.Lock()
	s.proc = nil
	s.setStateLocked(Closed)
	close(s.shutdownDone)
	s.mu.Unlock()

	logging.LogInfo("Session %s: closed", s.id)
	return err
}
