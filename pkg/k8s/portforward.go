package k8s

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"github.com/xlttj/kportfwd/pkg/logging"
)

// ErrSpawn is matched by every SpawnError.
var ErrSpawn = errors.New("failed to spawn process")

// SpawnError reports an OS-level failure to create the port-forward process.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Code   int    // -1 when killed by a signal or the status is unknown
	Reason string // e.g. "exit status 1", "signal: killed"
}

func (s ExitStatus) String() string {
	return fmt.Sprintf("code=%d reason=%s", s.Code, s.Reason)
}

// Process is one running port-forward child. Stdout and Stderr must be read
// to EOF before Wait is called; Wait is called exactly once.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() ExitStatus
	// Terminate asks the process to exit (SIGTERM).
	Terminate() error
	// Kill forces the process to exit (SIGKILL).
	Kill() error
}

// Spawner creates processes from an argv.
type Spawner interface {
	Spawn(argv []string) (Process, error)
}

// ExecSpawner runs argv as a real child process in its own process group.
type ExecSpawner struct{}

// Spawn starts argv with both output streams piped back.
func (ExecSpawner) Spawn(argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Argv: argv, Err: errors.New("empty command")}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Argv: argv, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		logging.LogError("Failed to start %s: %v", argv[0], err)
		return nil, &SpawnError{Argv: argv, Err: err}
	}

	logging.LogDebug("Started port-forward process PID: %d (%s)", cmd.Process.Pid, strings.Join(argv, " "))
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Pid() int          { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() ExitStatus {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0, Reason: "exit status 0"}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatus{Code: exitErr.ExitCode(), Reason: exitErr.ProcessState.String()}
	}
	return ExitStatus{Code: -1, Reason: err.Error()}
}

func (p *execProcess) Terminate() error {
	logging.LogDebug("Terminating port-forward process PID: %d", p.Pid())
	return signalProcess(p.cmd.Process, syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	logging.LogDebug("Killing port-forward process PID: %d", p.Pid())
	return signalProcess(p.cmd.Process, syscall.SIGKILL)
}
