//go:build !linux

package k8s

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func signalProcess(p *os.Process, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	if err := p.Signal(sig); err != nil {
		return p.Kill()
	}
	return nil
}
