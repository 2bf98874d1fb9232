//go:build windows

package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// WindowsProcessController terminates processes, enabling SeDebugPrivilege once
type WindowsProcessController struct {
	privilegeOnce sync.Once
}

// NewProcessController creates the platform process controller
func NewProcessController() *WindowsProcessController {
	return &WindowsProcessController{}
}

// EnableDebugPrivilege enables SeDebugPrivilege for system process access
func (c *WindowsProcessController) EnableDebugPrivilege() error {
	var token windows.Token
	proc, err := windows.GetCurrentProcess()
	if err != nil {
		return err
	}

	err = windows.OpenProcessToken(proc,
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return fmt.Errorf("OpenProcessToken failed: %w", err)
	}
	defer token.Close()

	var luid windows.LUID
	err = windows.LookupPrivilegeValue(nil,
		windows.StringToUTF16Ptr("SeDebugPrivilege"), &luid)
	if err != nil {
		return err
	}

	tp := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}

	return windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil)
}

// Terminate forcibly ends a process by PID
func (c *WindowsProcessController) Terminate(ctx context.Context, pid uint32) error {
	c.privilegeOnce.Do(func() {
		if err := c.EnableDebugPrivilege(); err != nil {
			log.Warn().Err(err).Msg("SeDebugPrivilege unavailable, termination may fail for system processes")
		}
	})

	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		return fmt.Errorf("OpenProcess failed for PID %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	if err := windows.TerminateProcess(handle, 1); err != nil {
		return fmt.Errorf("TerminateProcess failed for PID %d: %w", pid, err)
	}
	return nil
}

// WindowsFileMover moves files with MoveFileEx and marks the result read-only
type WindowsFileMover struct{}

// NewFileMover creates the platform file mover
func NewFileMover() *WindowsFileMover {
	return &WindowsFileMover{}
}

func (m *WindowsFileMover) Move(src, dst string) error {
	srcPtr, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return err
	}
	dstPtr, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return err
	}

	if err := windows.MoveFileEx(srcPtr, dstPtr,
		windows.MOVEFILE_COPY_ALLOWED|windows.MOVEFILE_WRITE_THROUGH); err != nil {
		return fmt.Errorf("MoveFileEx failed: %w", err)
	}

	// quarantined payloads stay read-only
	if err := windows.SetFileAttributes(dstPtr, windows.FILE_ATTRIBUTE_READONLY); err != nil {
		log.Warn().Err(err).Str("path", dst).Msg("failed to mark quarantined file read-only")
	}
	return nil
}
