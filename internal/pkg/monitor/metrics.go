package monitor

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"neoupdate/internal/pkg/logger"
)

// HostInfo 主机静态信息
type HostInfo struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Arch            string
	CPUCores        int
	MemoryTotal     uint64
}

// SystemMetrics 系统指标
type SystemMetrics struct {
	CPUUsage    float64
	MemoryUsage float64
	DiskUsage   float64
}

// GetFreeSpace 查询路径所在文件系统的可用字节数
// 按父目录查询，返回非特权进程可用的空间（bavail语义）
func GetFreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(filepath.Dir(path))
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// GetSystemMetrics 获取系统指标
func GetSystemMetrics() (*SystemMetrics, error) {
	metrics := &SystemMetrics{}

	// CPU采样100ms，对状态接口来说足够
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get CPU usage: "+err.Error(), logger.WarnLevel, nil)
	} else if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	vMem, err := mem.VirtualMemory()
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get Memory usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.MemoryUsage = vMem.UsedPercent
	}

	dUsage, err := disk.Usage("/")
	if err != nil {
		// Windows上"/"可能失败，回退到C:
		dUsage, err = disk.Usage("C:")
	}
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get Disk usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.DiskUsage = dUsage.UsedPercent
	}

	return metrics, nil
}

// GetHostInfo 获取主机静态信息
// identify时可选地附带这些属性上报给服务端
func GetHostInfo() (*HostInfo, error) {
	info := &HostInfo{
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	hInfo, err := host.Info()
	if err != nil {
		return info, err
	}
	info.Hostname = hInfo.Hostname
	info.OS = hInfo.OS
	info.Platform = hInfo.Platform
	info.PlatformVersion = hInfo.PlatformVersion
	info.KernelVersion = hInfo.KernelVersion

	vMem, err := mem.VirtualMemory()
	if err == nil {
		info.MemoryTotal = vMem.Total
	}

	return info, nil
}
