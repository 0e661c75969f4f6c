package session

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
)

// fakeProcess stands in for a kubectl child. Its streams are pipes the test
// writes to; it exits when exit is called or, unless told otherwise, when
// signalled.
type fakeProcess struct {
	pid  int
	argv []string

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	ignoreTerm bool
	ignoreKill bool

	terminated atomic.Int32
	killed     atomic.Int32
	alive      atomic.Bool

	once   sync.Once
	done   chan struct{}
	status k8s.ExitStatus
}

func newFakeProcess(pid int, argv []string) *fakeProcess {
	p := &fakeProcess{pid: pid, argv: argv, done: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	p.alive.Store(true)
	return p
}

func (p *fakeProcess) exit(code int, reason string) {
	p.once.Do(func() {
		p.alive.Store(false)
		p.status = k8s.ExitStatus{Code: code, Reason: reason}
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		close(p.done)
	})
}

func (p *fakeProcess) Pid() int          { return p.pid }
func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader { return p.stderrR }

func (p *fakeProcess) Wait() k8s.ExitStatus {
	<-p.done
	return p.status
}

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	if !p.ignoreTerm {
		p.exit(-1, "signal: terminated")
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Add(1)
	if !p.ignoreKill {
		p.exit(-1, "signal: killed")
	}
	return nil
}

// spawnGate holds one Spawn call until release is closed.
type spawnGate struct {
	entered chan struct{}
	release chan struct{}
}

type fakeSpawner struct {
	mu      sync.Mutex
	procs   []*fakeProcess
	failAt  map[int]error // spawn index -> error
	gates   map[int]spawnGate
	spawned chan *fakeProcess
	// plainErrors returns failAt errors as is instead of as a SpawnError.
	plainErrors bool
	// configure is applied to every process before it is returned.
	configure func(*fakeProcess)
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		failAt:  make(map[int]error),
		gates:   make(map[int]spawnGate),
		spawned: make(chan *fakeProcess, 1024),
	}
}

func (f *fakeSpawner) Spawn(argv []string) (k8s.Process, error) {
	f.mu.Lock()
	gate, held := f.gates[len(f.procs)]
	delete(f.gates, len(f.procs))
	f.mu.Unlock()
	if held {
		close(gate.entered)
		<-gate.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	attempt := len(f.procs)
	if err, ok := f.failAt[attempt]; ok {
		delete(f.failAt, attempt)
		if f.plainErrors {
			return nil, err
		}
		return nil, &k8s.SpawnError{Argv: argv, Err: err}
	}

	p := newFakeProcess(1000+attempt, append([]string(nil), argv...))
	if f.configure != nil {
		f.configure(p)
	}
	f.procs = append(f.procs, p)
	f.spawned <- p
	return p, nil
}

func (f *fakeSpawner) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[len(f.procs)] = err
}

// holdNext makes the next Spawn block until the gate is released.
func (f *fakeSpawner) holdNext() spawnGate {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := spawnGate{entered: make(chan struct{}), release: make(chan struct{})}
	f.gates[len(f.procs)] = gate
	return gate
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

func (f *fakeSpawner) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.procs {
		if p.alive.Load() {
			n++
		}
	}
	return n
}

func (f *fakeSpawner) last() *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

var errNoSuchFile = errors.New("no such file or directory")

func testCatalog() *config.Catalog {
	return config.NewCatalog(map[string]config.ServiceDescription{
		"web": {Port: "8080"},
		"db": {
			Namespace:   "data",
			Kind:        "svc",
			Object:      "pg",
			Port:        "5432",
			ServicePort: "5432",
		},
		"broken": {Namespace: "x"},
	})
}
