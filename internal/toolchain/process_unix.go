//go:build !windows

package toolchain

import (
	"os/exec"
	"syscall"
)

// processGroup puts a tool in its own process group so cancellation also
// stops the compilers and linkers it spawns.
type processGroup struct {
	cmd *exec.Cmd
}

func newProcessGroup(cmd *exec.Cmd) *processGroup {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	p := &processGroup{cmd: cmd}
	cmd.Cancel = p.terminate
	return p
}

func (p *processGroup) attach() {}

func (p *processGroup) release() {}

func (p *processGroup) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, syscall.SIGTERM)
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}
