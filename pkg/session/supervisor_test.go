package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
)

var webParams = Params{Context: "dev", Service: "web", Address: "127.0.0.1"}

func newTestSupervisor(t *testing.T, opts Options) (*Supervisor, *fakeSpawner) {
	t.Helper()
	spawner := newFakeSpawner()
	if opts.StopTimeout == 0 {
		opts.StopTimeout = time.Second
	}
	s := New("test", testCatalog(), spawner, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, spawner
}

func awaitSpawn(t *testing.T, f *fakeSpawner) *fakeProcess {
	t.Helper()
	select {
	case p := <-f.spawned:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a spawn")
		return nil
	}
}

func texts(events []LogEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Text
	}
	return out
}

func countText(events []LogEvent, text string) int {
	n := 0
	for _, ev := range events {
		if ev.Text == text {
			n++
		}
	}
	return n
}

func TestConnectSpawnsBuiltCommand(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	assert.Equal(t, []string{"kubectl", "port-forward", "--context", "dev", "web", "--address", "127.0.0.1", "8080"}, p.argv)
	assert.Equal(t, Running, s.State())
	assert.Equal(t, webParams, s.Params())
	assert.Equal(t, "dev:web", s.Label())
	assert.Equal(t, "127.0.0.1:8080", s.Endpoint())

	assert.Equal(t, []string{
		"Starting process",
		"Access service using nip.io via HTTPS https://web.dev.127.0.0.1.nip.io:8080, HTTP http://web.dev.127.0.0.1.nip.io:8080",
		"Access service using IP Only via HTTPS https://127.0.0.1:8080, HTTP http://127.0.0.1:8080",
		"Connect to 127.0.0.1:8080",
	}, texts(s.Log().Events(0)))
	for _, ev := range s.Log().Events(0) {
		assert.Equal(t, SeverityInfo, ev.Severity)
	}
}

func TestConnectUsesConfiguredKubectl(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{Kubectl: "/opt/bin/kubectl"})

	require.NoError(t, s.Connect(context.Background(), Params{Context: "ctx", Service: "db", Address: "0.0.0.0"}))
	p := awaitSpawn(t, spawner)

	assert.Equal(t, []string{"/opt/bin/kubectl", "port-forward", "--context", "ctx", "--namespace", "data", "svc/pg", "--address", "0.0.0.0", "5432:5432"}, p.argv)
	assert.Equal(t, "ctx:data:pg", s.Label())
}

func TestConnectWhileRunningIsRejected(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	require.NoError(t, s.Connect(context.Background(), webParams))
	err := s.Connect(context.Background(), Params{Context: "other", Service: "db", Address: "0.0.0.0"})

	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Equal(t, 1, spawner.count())
	assert.Equal(t, webParams, s.Params())
}

func TestConnectUnknownService(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	err := s.Connect(context.Background(), Params{Context: "dev", Service: "missing", Address: "127.0.0.1"})

	var invalid *config.InvalidServiceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "missing", invalid.Service)
	assert.ErrorIs(t, err, config.ErrInvalidService)
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, spawner.count())
	assert.Zero(t, s.Log().Len())
}

func TestConnectMissingPortNeverSpawns(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	err := s.Connect(context.Background(), Params{Context: "dev", Service: "broken", Address: "127.0.0.1"})

	assert.ErrorIs(t, err, config.ErrInvalidService)
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, spawner.count())
}

func TestConnectSpawnErrorStaysIdle(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	spawner.failNext(errNoSuchFile)

	err := s.Connect(context.Background(), webParams)

	assert.ErrorIs(t, err, k8s.ErrSpawn)
	assert.ErrorIs(t, err, errNoSuchFile)
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.Label())

	events := s.Log().Events(0)
	require.NotEmpty(t, events)
	assert.Equal(t, SeverityStderr, events[len(events)-1].Severity)

	require.NoError(t, s.Connect(context.Background(), webParams))
	assert.Equal(t, Running, s.State())
}

func TestConnectCancelledContext(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Connect(ctx, webParams), context.Canceled)
	assert.Zero(t, spawner.count())
}

func TestOutputIsLoggedPerRead(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)
	start := s.Log().Len()

	for _, line := range []string{"Forwarding from 127.0.0.1:8080 -> 8080\n", "Handling connection for 8080\n", "\n"} {
		_, err := p.stdoutW.Write([]byte(line))
		require.NoError(t, err)
	}
	_, err := p.stderrW.Write([]byte("error: lost connection\r\n"))
	require.NoError(t, err)
	_, err = p.stderrW.Write([]byte{'b', 'a', 'd', 0xff, '\n'})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Log().Len() == start+4 }, 2*time.Second, 5*time.Millisecond)

	var stdout, stderr []string
	for _, ev := range s.Log().Events(start) {
		switch ev.Severity {
		case SeverityStdout:
			stdout = append(stdout, ev.Text)
		case SeverityStderr:
			stderr = append(stderr, ev.Text)
		}
	}
	assert.Equal(t, []string{"Forwarding from 127.0.0.1:8080 -> 8080", "Handling connection for 8080"}, stdout)
	assert.Equal(t, []string{"error: lost connection", "bad�"}, stderr)
}

func TestCrashRestartsExactlyOnceWithSameArgv(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{Debug: true})
	require.NoError(t, s.Connect(context.Background(), webParams))
	first := awaitSpawn(t, spawner)

	first.exit(1, "exit status 1")
	second := awaitSpawn(t, spawner)

	assert.Equal(t, first.argv, second.argv)
	assert.Equal(t, Running, s.State())
	assert.Equal(t, webParams, s.Params())

	// The next spawn would only come from another exit.
	select {
	case p := <-spawner.spawned:
		t.Fatalf("unexpected extra spawn %v", p.argv)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, spawner.count())

	events := s.Log().Events(0)
	assert.Equal(t, 1, countText(events, "Restart process required"))
	assert.Equal(t, 1, countText(events, "Previous RC 1"))
	assert.Equal(t, 1, countText(events, "Previous Message exit status 1"))
	assert.Equal(t, 2, countText(events, "Starting process"))
}

func TestRestartLogsExitStatusWithoutDebug(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	first := awaitSpawn(t, spawner)

	first.exit(3, "exit status 3")
	awaitSpawn(t, spawner)

	events := s.Log().Events(0)
	assert.Equal(t, 1, countText(events, "Previous RC 3"))
	assert.Equal(t, 1, countText(events, "Previous Message exit status 3"))
	assert.Zero(t, countText(events, "Command: kubectl port-forward --context dev web --address 127.0.0.1 8080"))
}

func TestAccessorsDoNotBlockWhileRestartSpawns(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	first := awaitSpawn(t, spawner)

	gate := spawner.holdNext()
	first.exit(1, "exit status 1")
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("restart never reached the spawner")
	}

	read := make(chan State, 1)
	go func() {
		_ = s.Params()
		_ = s.Label()
		_ = s.Endpoint()
		read <- s.State()
	}()
	select {
	case state := <-read:
		assert.Equal(t, Running, state)
	case <-time.After(time.Second):
		t.Fatal("accessors blocked while the restart was spawning")
	}

	close(gate.release)
	second := awaitSpawn(t, spawner)
	assert.Equal(t, first.argv, second.argv)
	assert.Equal(t, "127.0.0.1:8080", s.Endpoint())
}

func TestPlainSpawnErrorIsWrapped(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	spawner.plainErrors = true
	spawner.failNext(errNoSuchFile)

	err := s.Connect(context.Background(), webParams)
	require.ErrorIs(t, err, k8s.ErrSpawn)
	require.ErrorIs(t, err, errNoSuchFile)
	var spawnErr *k8s.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, []string{"kubectl", "port-forward", "--context", "dev", "web", "--address", "127.0.0.1", "8080"}, spawnErr.Argv)
	assert.Equal(t, Idle, s.State())

	events := s.Log().Events(0)
	last := events[len(events)-1]
	assert.Equal(t, SeverityStderr, last.Severity)
	assert.Equal(t, spawnErr.Error(), last.Text)
}

func TestRepeatedCrashesKeepRestarting(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))

	p := awaitSpawn(t, spawner)
	for i := 0; i < 25; i++ {
		p.exit(1, "exit status 1")
		p = awaitSpawn(t, spawner)
	}

	assert.Equal(t, 26, spawner.count())
	assert.Equal(t, 1, spawner.live())
	assert.Equal(t, Running, s.State())
}

func TestRestartSpawnFailureGoesIdle(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	spawner.failNext(errNoSuchFile)
	p.exit(1, "exit status 1")

	require.Eventually(t, func() bool { return s.State() == Idle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, spawner.count())
	assert.Empty(t, s.Label())
	require.Eventually(t, func() bool {
		events := s.Log().Events(0)
		return events[len(events)-1].Text == "Restart failed, process stopped"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Connect(context.Background(), webParams))
	assert.Equal(t, Running, s.State())
}

func TestDisconnect(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{Debug: true})
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	require.NoError(t, s.Disconnect(context.Background()))

	assert.Equal(t, Idle, s.State())
	assert.EqualValues(t, 1, p.terminated.Load())
	assert.Zero(t, p.killed.Load())
	assert.Equal(t, 1, spawner.count())
	assert.Zero(t, spawner.live())

	events := s.Log().Events(0)
	assert.Zero(t, countText(events, "Restart process required"))
	assert.Equal(t, 1, countText(events, "Killing process"))
	assert.Equal(t, 1, countText(events, "Waiting for process to die"))
	assert.Equal(t, "Process stopped", events[len(events)-1].Text)
}

func TestDisconnectWhenIdleIsNoop(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, spawner.count())
	assert.Zero(t, s.Log().Len())
}

func TestDisconnectEscalatesToKill(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{StopTimeout: 20 * time.Millisecond})
	spawner.configure = func(p *fakeProcess) { p.ignoreTerm = true }
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	require.NoError(t, s.Disconnect(context.Background()))

	assert.EqualValues(t, 1, p.terminated.Load())
	assert.EqualValues(t, 1, p.killed.Load())
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 1, spawner.count())
}

func TestDisconnectStopTimeout(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{StopTimeout: 20 * time.Millisecond})
	spawner.configure = func(p *fakeProcess) {
		p.ignoreTerm = true
		p.ignoreKill = true
	}
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	err := s.Disconnect(context.Background())
	assert.ErrorIs(t, err, ErrStopTimeout)

	// The process is still alive, so the session must not accept a new one.
	assert.Equal(t, Stopping, s.State())
	assert.ErrorIs(t, s.Connect(context.Background(), webParams), ErrNotIdle)
	assert.ErrorIs(t, s.Disconnect(context.Background()), ErrStopTimeout)
	assert.Equal(t, 1, spawner.count())
	assert.Equal(t, 1, spawner.live())

	// Once it is reaped the session is free again and nothing was restarted.
	p.exit(-1, "signal: killed")
	require.Eventually(t, func() bool { return s.State() == Idle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, spawner.count())
	assert.Zero(t, countText(s.Log().Events(0), "Restart process required"))

	require.NoError(t, s.Connect(context.Background(), webParams))
	assert.Equal(t, 2, spawner.count())
	assert.Equal(t, 1, spawner.live())
}

func TestDisconnectThenConnectNeverLeavesTwoLiveProcesses(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Connect(context.Background(), webParams))
		assert.Equal(t, 1, spawner.live())
		require.NoError(t, s.Disconnect(context.Background()))
		assert.Zero(t, spawner.live())
	}
	assert.Equal(t, 20, spawner.count())
}

func TestShutdown(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	require.NoError(t, s.Shutdown(context.Background()))

	assert.Equal(t, Closed, s.State())
	assert.EqualValues(t, 1, p.killed.Load())
	assert.Zero(t, spawner.live())
	assert.Equal(t, 1, spawner.count())

	assert.ErrorIs(t, s.Connect(context.Background(), webParams), ErrClosed)
	assert.ErrorIs(t, s.Disconnect(context.Background()), ErrClosed)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 1, spawner.count())
}

func TestShutdownWhenIdle(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, Closed, s.State())
	assert.Zero(t, spawner.count())
}

func TestShutdownConcurrentCallers(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{})
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Shutdown(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, p.killed.Load())
	assert.Equal(t, Closed, s.State())
}

func TestShutdownRacingCrashNeverRestartsAfterward(t *testing.T) {
	for i := 0; i < 100; i++ {
		spawner := newFakeSpawner()
		s := New("race", testCatalog(), spawner, Options{StopTimeout: time.Second})
		require.NoError(t, s.Connect(context.Background(), webParams))
		p := awaitSpawn(t, spawner)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p.exit(1, "exit status 1")
		}()
		close(start)
		require.NoError(t, s.Shutdown(context.Background()))
		wg.Wait()

		spawnedAtShutdown := spawner.count()
		assert.LessOrEqual(t, spawnedAtShutdown, 2)

		// Any replacement spawned before the flag was set has been killed too.
		time.Sleep(time.Millisecond)
		assert.Equal(t, spawnedAtShutdown, spawner.count())
		assert.Zero(t, spawner.live())
		assert.Equal(t, Closed, s.State())
	}
}

func TestShutdownDuringDisconnect(t *testing.T) {
	s, spawner := newTestSupervisor(t, Options{StopTimeout: 200 * time.Millisecond})
	spawner.configure = func(p *fakeProcess) { p.ignoreTerm = true }
	require.NoError(t, s.Connect(context.Background(), webParams))
	p := awaitSpawn(t, spawner)

	disconnected := make(chan error, 1)
	go func() { disconnected <- s.Disconnect(context.Background()) }()
	require.Eventually(t, func() bool { return p.terminated.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, <-disconnected)

	assert.Equal(t, Closed, s.State())
	assert.Zero(t, spawner.live())
	assert.Equal(t, 1, spawner.count())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "ShuttingDown", ShuttingDown.String())
	assert.Equal(t, "State(42)", State(42).String())
}
