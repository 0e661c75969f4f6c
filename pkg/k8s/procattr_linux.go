package k8s

import (
	"os"
	"syscall"
)

// sysProcAttr puts kubectl in its own process group so a signal reaches any
// helper it forks. Pdeathsig is a Linux-only safety net: if kportfwd dies
// unexpectedly, the kernel sends SIGTERM to the direct child.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

// signalProcess signals the whole process group, falling back to the
// process itself when the group is already gone.
func signalProcess(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	return p.Signal(sig)
}
