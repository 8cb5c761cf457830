//go:build !linux

package deploy

import (
	"fmt"
	"runtime"
)

// SystemRebooter 非Linux平台占位实现
type SystemRebooter struct{}

func (SystemRebooter) Reboot() error {
	return fmt.Errorf("system reboot not supported on %s", runtime.GOOS)
}
