//go:build windows

package toolchain

import (
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// processGroup ties a tool and its children to a job object that is killed
// when the handle closes.
type processGroup struct {
	cmd *exec.Cmd
	job windows.Handle
}

func newProcessGroup(cmd *exec.Cmd) *processGroup {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
	p := &processGroup{cmd: cmd}
	cmd.Cancel = p.terminate
	return p
}

func (p *processGroup) attach() {
	job, err := createJobObject()
	if err != nil {
		return
	}
	if err := assignProcessToJob(job, p.cmd.Process.Pid); err != nil {
		windows.CloseHandle(job)
		return
	}
	p.job = job
}

func (p *processGroup) release() {
	if p.job != 0 {
		windows.CloseHandle(p.job)
		p.job = 0
	}
}

func (p *processGroup) terminate() error {
	if p.job != 0 {
		p.release()
		return nil
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func createJobObject() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{}
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	return job, nil
}

func assignProcessToJob(job windows.Handle, pid int) error {
	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)

	return windows.AssignProcessToJobObject(job, handle)
}
