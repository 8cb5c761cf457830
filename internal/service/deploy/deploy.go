/**
 * 部署工作流服务
 * @author: sun977
 * @date: 2026.07.25
 * @description: 处理hawkBit下发的部署：解析、预检、下载、校验、移交安装器、上报
 */
package deploy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"neoupdate/internal/config"
	model "neoupdate/internal/model/client"
	httpclient "neoupdate/internal/pkg/client"
	"neoupdate/internal/pkg/jsonpath"
	"neoupdate/internal/pkg/logger"
	"neoupdate/internal/pkg/monitor"
)

// Rebooter 系统重启能力
// 注入而不是直接调用syscall，测试里可以断言触发而不真的重启
type Rebooter interface {
	Reboot() error
}

// Service 部署工作流服务
// 进程内同一时刻至多存在一个活动部署，由actionID槽位保证
type Service struct {
	cfg            *config.Config
	rest           *httpclient.RestClient
	installerReady model.InstallerReadyFunc
	rebooter       Rebooter

	// freeSpace 可注入的磁盘空间查询，默认走monitor
	freeSpace func(path string) (uint64, error)

	// actionID 当前部署的动作ID槽位，""表示空闲
	// 主循环写入，安装完成回调或失败路径(含下载worker)清空，进度回调只读
	actionID atomic.Value

	mu         sync.Mutex
	workerDone chan struct{} // 下载worker的join句柄，nil表示没有worker
	lastErr    error         // 最近一次部署失败的原因，新部署开始时清空

	completions chan model.InstallOutcome
}

// NewService 创建部署工作流服务实例
func NewService(cfg *config.Config, rest *httpclient.RestClient, ready model.InstallerReadyFunc) *Service {
	s := &Service{
		cfg:            cfg,
		rest:           rest,
		installerReady: ready,
		rebooter:       SystemRebooter{},
		freeSpace:      monitor.GetFreeSpace,
		completions:    make(chan model.InstallOutcome, 1),
	}
	s.actionID.Store("")
	return s
}

// SetRebooter 替换重启实现
func (s *Service) SetRebooter(r Rebooter) {
	s.rebooter = r
}

// SetFreeSpaceFunc 替换磁盘空间查询实现
func (s *Service) SetFreeSpaceFunc(fn func(path string) (uint64, error)) {
	s.freeSpace = fn
}

// ActionID 返回当前部署的动作ID，空闲时返回""
func (s *Service) ActionID() string {
	id, _ := s.actionID.Load().(string)
	return id
}

func (s *Service) setActionID(id string) {
	s.actionID.Store(id)
}

// Completions 安装完成事件通道，由主循环消费
func (s *Service) Completions() <-chan model.InstallOutcome {
	return s.completions
}

// LastError 最近一次部署失败的原因，可用errors.Is判别失败类别
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Service) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// ProcessDeployment 处理一次部署下发
// root是基础轮询的响应，包含deploymentBase链接
func (s *Service) ProcessDeployment(ctx context.Context, root map[string]interface{}) error {
	// 单活动部署约束：已有部署时直接拒绝，不触碰现有状态
	if id := s.ActionID(); id != "" {
		return fmt.Errorf("deployment %s is already in progress: %w", id, model.ErrAlreadyInProgress)
	}

	deploymentURL, err := jsonpath.GetString(root, "$._links.deploymentBase.href")
	if err != nil {
		return fmt.Errorf("failed to parse deployment base response: %w", model.ErrJSONResponseParse)
	}

	resp, err := s.rest.Request(ctx, httpclient.MethodGet, deploymentURL, nil, true)
	if err != nil {
		return err
	}

	actionID, err := jsonpath.GetString(resp, "$.id")
	if err != nil || actionID == "" {
		return fmt.Errorf("failed to parse deployment base response: %w", model.ErrJSONResponseParse)
	}
	s.setActionID(actionID)
	s.setLastError(nil)

	feedbackURL := httpclient.BuildAPIURL(s.cfg.Hawkbit, "deploymentBase/%s/feedback", actionID)

	chunks, err := jsonpath.GetArray(resp, "$.deployment.chunks")
	if err != nil || len(chunks) == 0 {
		return s.failDeployment(ctx, feedbackURL, actionID, "Failed to parse deployment resource.", model.ErrJSONResponseParse)
	}
	// 多chunk部署不支持，只处理第一个
	if len(chunks) > 1 {
		logger.Warnf("Deployment %s has %d chunks, only the first is processed", actionID, len(chunks))
	}
	chunk := chunks[0]

	artifacts, err := jsonpath.GetArray(chunk, "$.artifacts")
	if err != nil || len(artifacts) == 0 {
		return s.failDeployment(ctx, feedbackURL, actionID, "Failed to parse deployment resource.", model.ErrJSONResponseParse)
	}
	if len(artifacts) > 1 {
		logger.Warnf("Deployment %s has %d artifacts, only the first is processed", actionID, len(artifacts))
	}
	jsonArtifact := artifacts[0]

	artifact := &model.Artifact{FeedbackURL: feedbackURL}
	artifact.Name, _ = jsonpath.GetString(chunk, "$.name")
	artifact.Version, _ = jsonpath.GetString(chunk, "$.version")
	artifact.Size, _ = jsonpath.GetInt64(jsonArtifact, "$.size")
	artifact.SHA1, _ = jsonpath.GetString(jsonArtifact, "$.hashes.sha1")

	// HTTPS地址优先，没有时回退到HTTP
	if u, uerr := jsonpath.GetString(jsonArtifact, "$._links.download.href"); uerr == nil {
		artifact.DownloadURL = u
	} else if u, uerr := jsonpath.GetString(jsonArtifact, "$._links.download-http.href"); uerr == nil {
		artifact.DownloadURL = u
	}
	if artifact.DownloadURL == "" {
		return s.failDeployment(ctx, feedbackURL, actionID, "Failed to parse deployment resource.", model.ErrJSONResponseParse)
	}

	logger.Infof("New software ready for download. (Name: %s, Version: %s, Size: %d, URL: %s)",
		artifact.Name, artifact.Version, artifact.Size, artifact.DownloadURL)

	// 磁盘空间预检
	location := s.cfg.Hawkbit.BundleDownloadLocation
	free, err := s.freeSpace(location)
	if err != nil {
		msg := fmt.Sprintf("Failed to calculate free space for %s: %s", location, err)
		wrapped := fmt.Errorf("failed to calculate free space for %s: %w", location, err)
		s.setLastError(wrapped)
		s.sendFeedback(ctx, feedbackURL, actionID, msg, model.FinishedFailure, model.ExecutionClosed)
		s.cleanupDeployment()
		return wrapped
	}
	if artifact.Size > 0 && free < uint64(artifact.Size) {
		msg := fmt.Sprintf("Not enough free space. File size: %d. Free space: %d", artifact.Size, free)
		logger.Debug(msg)
		return s.failDeployment(ctx, feedbackURL, actionID, msg, model.ErrNoSpace)
	}

	// join上一个worker，保证同时至多一个下载线程
	s.joinWorker()
	s.startWorker(artifact)

	return nil
}

// failDeployment worker启动前的失败路径：上报failure/closed并清理部署状态
func (s *Service) failDeployment(ctx context.Context, feedbackURL, actionID, detail string, cause error) error {
	err := fmt.Errorf("%s: %w", detail, cause)
	s.setLastError(err)
	s.sendFeedback(ctx, feedbackURL, actionID, detail, model.FinishedFailure, model.ExecutionClosed)
	s.cleanupDeployment()
	return err
}

// failWorker worker内的失败路径：记录失败原因、上报failure/closed并清理
func (s *Service) failWorker(ctx context.Context, artifact *model.Artifact, actionID, stage, detail string, cause error) {
	s.setLastError(fmt.Errorf("%s: %w", detail, cause))
	logger.LogUpdateOperation(actionID, stage, "failed", detail, nil)
	s.sendFeedback(ctx, artifact.FeedbackURL, actionID, detail, model.FinishedFailure, model.ExecutionClosed)
	s.cleanupDeployment()
}

// startWorker 启动下载worker并登记join句柄
func (s *Service) startWorker(artifact *model.Artifact) {
	done := make(chan struct{})
	s.mu.Lock()
	s.workerDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runWorker(artifact)
	}()
}

// joinWorker 等待当前worker退出
func (s *Service) joinWorker() {
	s.mu.Lock()
	done := s.workerDone
	s.workerDone = nil
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Shutdown 停止服务：等待下载worker自然退出
func (s *Service) Shutdown() {
	s.joinWorker()
}

// runWorker 下载worker主体，同一时刻只有一个在运行
func (s *Service) runWorker(artifact *model.Artifact) {
	ctx := context.Background()
	actionID := s.ActionID()
	location := s.cfg.Hawkbit.BundleDownloadLocation

	logger.Infof("Start downloading: %s", artifact.DownloadURL)
	logger.LogUpdateOperation(actionID, "download", "running", artifact.DownloadURL, nil)

	sha1sum, speed, err := s.rest.Download(ctx, artifact.DownloadURL, location, artifact.Size)
	if err != nil {
		msg := fmt.Sprintf("Download failed: %s", err)
		s.failWorker(ctx, artifact, actionID, "download", msg, model.ErrDownload)
		return
	}

	// 下载完成，上报进度
	msg := fmt.Sprintf("Download complete. %.2f MB/s", speed/(1024*1024))
	s.sendProgress(ctx, artifact.FeedbackURL, actionID, msg)
	logger.Info(msg)

	// 校验SHA-1
	if sha1sum != artifact.SHA1 {
		msg := fmt.Sprintf("Software: %s V%s. Invalid checksum: %s expected %s",
			artifact.Name, artifact.Version, sha1sum, artifact.SHA1)
		s.failWorker(ctx, artifact, actionID, "verify", msg, model.ErrChecksum)
		return
	}
	logger.Info("File checksum OK.")
	s.sendProgress(ctx, artifact.FeedbackURL, actionID, "File checksum OK.")

	// 移交外部安装器，worker到此退出
	s.installerReady(&model.InstallRequest{
		BundlePath: location,
		Progress:   s.ReportProgress,
		Complete:   s.queueCompletion,
	})
}

// queueCompletion 安装完成通知入队，由主循环调度HandleInstallComplete
func (s *Service) queueCompletion(outcome model.InstallOutcome) {
	s.completions <- outcome
}

// ReportProgress 安装进度上报，没有活动部署时为no-op
// 可能在worker或安装器线程被调用，只读actionID槽位
func (s *Service) ReportProgress(msg string) {
	actionID := s.ActionID()
	if actionID == "" {
		return
	}
	feedbackURL := httpclient.BuildAPIURL(s.cfg.Hawkbit, "deploymentBase/%s/feedback", actionID)
	s.sendProgress(context.Background(), feedbackURL, actionID, msg)
}

// HandleInstallComplete 处理安装完成事件，在主循环线程执行
func (s *Service) HandleInstallComplete(outcome model.InstallOutcome) {
	actionID := s.ActionID()
	if actionID == "" {
		// 迟到的完成通知，部署已经结束
		return
	}

	ctx := context.Background()
	feedbackURL := httpclient.BuildAPIURL(s.cfg.Hawkbit, "deploymentBase/%s/feedback", actionID)

	if outcome == model.OutcomeSuccess {
		logger.Info("Software bundle installed successful.")
		logger.LogUpdateOperation(actionID, "install", "success", "Software bundle installed successful.", nil)
		s.sendFeedback(ctx, feedbackURL, actionID, "Software bundle installed successful.", model.FinishedSuccess, model.ExecutionClosed)
	} else {
		logger.Error("Failed to install software bundle.")
		logger.LogUpdateOperation(actionID, "install", "failed", "Failed to install software bundle.", nil)
		s.sendFeedback(ctx, feedbackURL, actionID, "Failed to install software bundle.", model.FinishedFailure, model.ExecutionClosed)
	}

	// 收尾只在这里做一次；重启放在收尾之后，重启成功后不会返回
	s.cleanupDeployment()

	if outcome == model.OutcomeSuccess && s.cfg.Hawkbit.PostUpdateReboot {
		// 重启失败只记录，success反馈已经发出，不再上报
		if err := s.rebooter.Reboot(); err != nil {
			logger.Errorf("Failed to reboot: %v", err)
		}
	}
}

// cleanupDeployment 部署收尾：清空动作ID并删除本地软件包
func (s *Service) cleanupDeployment() {
	s.setActionID("")

	location := s.cfg.Hawkbit.BundleDownloadLocation
	if _, err := os.Stat(location); err == nil {
		if err := os.Remove(location); err != nil {
			logger.Debugf("Failed to delete file: %s", location)
		}
	}
}

// sendFeedback 发送终态/失败反馈，尽力而为
func (s *Service) sendFeedback(ctx context.Context, url, id, detail, finished, execution string) {
	fb := model.NewFeedback(id, detail, finished, execution)
	if _, err := s.rest.Request(ctx, httpclient.MethodPost, url, fb, false); err != nil {
		logger.Warnf("Failed to send feedback for action %s: %v", id, err)
	}
}

// sendProgress 发送进度反馈（proceeding/none）
func (s *Service) sendProgress(ctx context.Context, url, id, detail string) {
	fb := model.NewProgressFeedback(id, detail)
	if _, err := s.rest.Request(ctx, httpclient.MethodPost, url, fb, false); err != nil {
		logger.Warnf("Failed to send progress feedback for action %s: %v", id, err)
	}
}
