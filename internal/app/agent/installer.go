/**
 * 安装器桥接
 * @author: sun977
 * @date: 2026.07.30
 * @description: 把校验通过的软件包移交给外部安装命令，转发进度并回报结果
 */
package agent

import (
	"bufio"
	"os/exec"

	"neoupdate/internal/config"
	model "neoupdate/internal/model/client"
	"neoupdate/internal/pkg/logger"
)

// newInstallerBridge 构造软件包就绪回调
// 部署工作流本身不关心安装方式，这里把配置的安装命令包装成回调
func newInstallerBridge(cfg *config.InstallerConfig) model.InstallerReadyFunc {
	return func(req *model.InstallRequest) {
		// 回调在下载worker上触发，安装在独立goroutine执行
		go runInstaller(cfg, req)
	}
}

// runInstaller 执行安装命令
// 软件包路径作为最后一个参数传入，stdout按行转发为安装进度
func runInstaller(cfg *config.InstallerConfig, req *model.InstallRequest) {
	if cfg == nil || cfg.Command == "" {
		logger.Warn("No installer command configured, cannot install bundle")
		req.Complete(model.OutcomeFailure)
		return
	}

	args := make([]string, 0, len(cfg.Args)+1)
	args = append(args, cfg.Args...)
	args = append(args, req.BundlePath)

	cmd := exec.Command(cfg.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Errorf("Failed to create installer stdout pipe: %v", err)
		req.Complete(model.OutcomeFailure)
		return
	}

	if err := cmd.Start(); err != nil {
		logger.Errorf("Failed to start installer %s: %v", cfg.Command, err)
		req.Complete(model.OutcomeFailure)
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		logger.Debugf("Installer: %s", line)
		req.Progress(line)
	}

	if err := cmd.Wait(); err != nil {
		logger.Errorf("Installer exited with error: %v", err)
		req.Complete(model.OutcomeFailure)
		return
	}

	req.Complete(model.OutcomeSuccess)
}
