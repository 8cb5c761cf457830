//go:build linux

package deploy

import "golang.org/x/sys/unix"

// SystemRebooter Linux系统重启实现
type SystemRebooter struct{}

// Reboot 同步文件系统后无条件重启
func (SystemRebooter) Reboot() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
