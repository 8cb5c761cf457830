package deploy

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"neoupdate/internal/config"
	model "neoupdate/internal/model/client"
	httpclient "neoupdate/internal/pkg/client"
)

// feedbackRecord 记录一次上报的反馈文档
type feedbackRecord struct {
	Execution string
	Finished  string
	Detail    string
}

// deployFixture 部署测试环境：一个同时扮演DDI服务端和制品仓库的httptest服务
type deployFixture struct {
	srv *httptest.Server
	mux *http.ServeMux
	cfg *config.Config
	svc *Service

	mu        sync.Mutex
	feedbacks []feedbackRecord
	installed []*model.InstallRequest
	downloads int
}

func newDeployFixture(t *testing.T) *deployFixture {
	t.Helper()
	f := &deployFixture{mux: http.NewServeMux()}
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)

	f.cfg = &config.Config{
		Hawkbit: &config.HawkbitConfig{
			Server:                 strings.TrimPrefix(f.srv.URL, "http://"),
			TenantID:               "DEFAULT",
			ControllerID:           "dev01",
			SSL:                    false,
			SSLVerify:              false,
			ConnectTimeout:         5 * time.Second,
			RequestTimeout:         10 * time.Second,
			RetryWait:              300 * time.Second,
			BundleDownloadLocation: filepath.Join(t.TempDir(), "bundle.raucb"),
		},
	}

	rest := httpclient.NewRestClient(&httpclient.Options{
		SSLVerify:      false,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
	})

	f.svc = NewService(f.cfg, rest, func(req *model.InstallRequest) {
		f.mu.Lock()
		f.installed = append(f.installed, req)
		f.mu.Unlock()
	})
	f.svc.SetFreeSpaceFunc(func(path string) (uint64, error) {
		return 1 << 30, nil
	})

	// 反馈端点
	f.mux.HandleFunc("/DEFAULT/controller/v1/dev01/deploymentBase/", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		json.Unmarshal(raw, &body)

		rec := feedbackRecord{}
		if status, ok := body["status"].(map[string]interface{}); ok {
			rec.Execution, _ = status["execution"].(string)
			if result, ok := status["result"].(map[string]interface{}); ok {
				rec.Finished, _ = result["finished"].(string)
			}
			if details, ok := status["details"].([]interface{}); ok && len(details) > 0 {
				rec.Detail, _ = details[0].(string)
			}
		}

		f.mu.Lock()
		f.feedbacks = append(f.feedbacks, rec)
		f.mu.Unlock()
	})

	return f
}

// serveDeployment 注册部署资源与制品下载端点
func (f *deployFixture) serveDeployment(actionID string, payload []byte, advertisedSHA1 string, links map[string]string) map[string]interface{} {
	linkObj := map[string]interface{}{}
	for name, path := range links {
		linkObj[name] = map[string]interface{}{"href": f.srv.URL + path}
	}

	deployment := map[string]interface{}{
		"id": actionID,
		"deployment": map[string]interface{}{
			"chunks": []interface{}{
				map[string]interface{}{
					"name":    "foo",
					"version": "1.2",
					"artifacts": []interface{}{
						map[string]interface{}{
							"size":   len(payload),
							"hashes": map[string]interface{}{"sha1": advertisedSHA1},
							"_links": linkObj,
						},
					},
				},
			},
		},
	}

	f.mux.HandleFunc("/deploy/"+actionID, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(deployment)
	})
	f.mux.HandleFunc("/download/"+actionID, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.downloads++
		f.mu.Unlock()
		w.Write(payload)
	})

	return map[string]interface{}{
		"_links": map[string]interface{}{
			"deploymentBase": map[string]interface{}{"href": f.srv.URL + "/deploy/" + actionID},
		},
	}
}

func (f *deployFixture) feedbackList() []feedbackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]feedbackRecord, len(f.feedbacks))
	copy(out, f.feedbacks)
	return out
}

func (f *deployFixture) installRequests() []*model.InstallRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.InstallRequest, len(f.installed))
	copy(out, f.installed)
	return out
}

func sha1hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestProcessDeployment_HappyPath(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")
	root := f.serveDeployment("42", payload, sha1hex(payload), map[string]string{"download": "/download/42"})

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("ProcessDeployment error: %v", err)
	}
	// 等待下载worker退出
	f.svc.Shutdown()

	if got := f.svc.ActionID(); got != "42" {
		t.Errorf("action id = %q, want 42", got)
	}

	// 进度反馈顺序：下载完成、校验通过
	fbs := f.feedbackList()
	if len(fbs) != 2 {
		t.Fatalf("feedback count = %d, want 2: %+v", len(fbs), fbs)
	}
	if fbs[0].Execution != "proceeding" || fbs[0].Finished != "none" || !strings.HasPrefix(fbs[0].Detail, "Download complete. ") {
		t.Errorf("first feedback = %+v", fbs[0])
	}
	if fbs[1].Detail != "File checksum OK." {
		t.Errorf("second feedback = %+v", fbs[1])
	}

	// 安装器拿到软件包路径
	installs := f.installRequests()
	if len(installs) != 1 {
		t.Fatalf("installer-ready calls = %d, want 1", len(installs))
	}
	if installs[0].BundlePath != f.cfg.Hawkbit.BundleDownloadLocation {
		t.Errorf("bundle path = %q", installs[0].BundlePath)
	}
	content, err := os.ReadFile(installs[0].BundlePath)
	if err != nil || string(content) != "abcdefg" {
		t.Errorf("bundle content = %q, err %v", content, err)
	}

	// 安装成功后：终态反馈 + 清理
	installs[0].Complete(model.OutcomeSuccess)
	f.svc.HandleInstallComplete(<-f.svc.Completions())

	fbs = f.feedbackList()
	last := fbs[len(fbs)-1]
	if last.Execution != "closed" || last.Finished != "success" || last.Detail != "Software bundle installed successful." {
		t.Errorf("terminal feedback = %+v", last)
	}
	if got := f.svc.ActionID(); got != "" {
		t.Errorf("action id after completion = %q, want empty", got)
	}
	if _, err := os.Stat(f.cfg.Hawkbit.BundleDownloadLocation); !os.IsNotExist(err) {
		t.Error("bundle file should be deleted after terminal feedback")
	}
}

func TestProcessDeployment_ChecksumMismatch(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefX")
	expected := sha1hex([]byte("abcdefg"))
	root := f.serveDeployment("43", payload, expected, map[string]string{"download": "/download/43"})

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("ProcessDeployment error: %v", err)
	}
	f.svc.Shutdown()

	// 终态failure反馈，detail同时点名计算值与期望值
	fbs := f.feedbackList()
	last := fbs[len(fbs)-1]
	if last.Execution != "closed" || last.Finished != "failure" {
		t.Errorf("terminal feedback = %+v", last)
	}
	if !strings.Contains(last.Detail, sha1hex(payload)) || !strings.Contains(last.Detail, expected) {
		t.Errorf("checksum detail = %q", last.Detail)
	}

	// 安装器不能被触发
	if len(f.installRequests()) != 0 {
		t.Error("installer-ready must not be called on checksum mismatch")
	}

	// 文件删除、动作ID清空
	if _, err := os.Stat(f.cfg.Hawkbit.BundleDownloadLocation); !os.IsNotExist(err) {
		t.Error("bundle file should be deleted")
	}
	if got := f.svc.ActionID(); got != "" {
		t.Errorf("action id = %q, want empty", got)
	}

	// 失败原因归入校验和类别
	if !errors.Is(f.svc.LastError(), model.ErrChecksum) {
		t.Errorf("last error = %v, want ErrChecksum", f.svc.LastError())
	}
}

func TestProcessDeployment_DownloadFailure(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")
	root := f.serveDeployment("45", payload, sha1hex(payload), map[string]string{"download": "/broken/45"})

	// 制品仓库返回404
	f.mux.HandleFunc("/broken/45", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("ProcessDeployment error: %v", err)
	}
	f.svc.Shutdown()

	// 终态failure反馈，detail带下载失败信息
	fbs := f.feedbackList()
	if len(fbs) != 1 {
		t.Fatalf("feedback count = %d, want 1: %+v", len(fbs), fbs)
	}
	if fbs[0].Execution != "closed" || fbs[0].Finished != "failure" || !strings.HasPrefix(fbs[0].Detail, "Download failed: ") {
		t.Errorf("feedback = %+v", fbs[0])
	}

	// 失败原因归入下载类别
	if !errors.Is(f.svc.LastError(), model.ErrDownload) {
		t.Errorf("last error = %v, want ErrDownload", f.svc.LastError())
	}

	// 安装器不触发，状态清理完成
	if len(f.installRequests()) != 0 {
		t.Error("installer-ready must not be called on download failure")
	}
	if got := f.svc.ActionID(); got != "" {
		t.Errorf("action id = %q, want empty", got)
	}
	if _, err := os.Stat(f.cfg.Hawkbit.BundleDownloadLocation); !os.IsNotExist(err) {
		t.Error("bundle file should be deleted")
	}
}

func TestProcessDeployment_InsufficientSpace(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")
	root := f.serveDeployment("44", payload, sha1hex(payload), map[string]string{"download": "/download/44"})

	// 可用空间比制品少1字节
	f.svc.SetFreeSpaceFunc(func(path string) (uint64, error) {
		return uint64(len(payload)) - 1, nil
	})

	err := f.svc.ProcessDeployment(context.Background(), root)
	if !errors.Is(err, model.ErrNoSpace) {
		t.Fatalf("expected ErrNoSpace, got %v", err)
	}

	fbs := f.feedbackList()
	if len(fbs) != 1 {
		t.Fatalf("feedback count = %d, want 1", len(fbs))
	}
	if fbs[0].Execution != "closed" || fbs[0].Finished != "failure" || !strings.HasPrefix(fbs[0].Detail, "Not enough free space.") {
		t.Errorf("feedback = %+v", fbs[0])
	}

	// worker没有启动：没有下载请求，也没有安装回调
	f.mu.Lock()
	downloads := f.downloads
	f.mu.Unlock()
	if downloads != 0 {
		t.Error("download must not start when space check fails")
	}
	if len(f.installRequests()) != 0 {
		t.Error("installer-ready must not be called")
	}
	if got := f.svc.ActionID(); got != "" {
		t.Errorf("action id = %q, want empty", got)
	}
	if !errors.Is(f.svc.LastError(), model.ErrNoSpace) {
		t.Errorf("last error = %v, want ErrNoSpace", f.svc.LastError())
	}
}

func TestProcessDeployment_Overlap(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")

	// 第一个部署的下载阻塞，模拟进行中的worker
	release := make(chan struct{})
	f.mux.HandleFunc("/slow-download", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(payload)
	})

	deployment := map[string]interface{}{
		"id": "50",
		"deployment": map[string]interface{}{
			"chunks": []interface{}{
				map[string]interface{}{
					"name":    "foo",
					"version": "1.2",
					"artifacts": []interface{}{
						map[string]interface{}{
							"size":   len(payload),
							"hashes": map[string]interface{}{"sha1": sha1hex(payload)},
							"_links": map[string]interface{}{
								"download": map[string]interface{}{"href": f.srv.URL + "/slow-download"},
							},
						},
					},
				},
			},
		},
	}
	f.mux.HandleFunc("/deploy/50", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(deployment)
	})
	root := map[string]interface{}{
		"_links": map[string]interface{}{
			"deploymentBase": map[string]interface{}{"href": f.srv.URL + "/deploy/50"},
		},
	}

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("first ProcessDeployment error: %v", err)
	}

	// worker仍在下载，新部署必须被拒绝且不破坏现有状态
	root2 := f.serveDeployment("51", payload, sha1hex(payload), map[string]string{"download": "/download/51"})
	err := f.svc.ProcessDeployment(context.Background(), root2)
	if !errors.Is(err, model.ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}
	if got := f.svc.ActionID(); got != "50" {
		t.Errorf("action id = %q, want 50 (unchanged)", got)
	}

	close(release)
	f.svc.Shutdown()
}

func TestProcessDeployment_DownloadURLPreference(t *testing.T) {
	tests := []struct {
		name     string
		links    map[string]string
		wantPath string
	}{
		{
			name:     "HTTPS Preferred Over HTTP",
			links:    map[string]string{"download": "/download/60", "download-http": "/download/60-http"},
			wantPath: "/download/60",
		},
		{
			name:     "HTTP Fallback",
			links:    map[string]string{"download-http": "/download/61"},
			wantPath: "/download/61",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDeployFixture(t)
			payload := []byte("abcdefg")

			var hit string
			var hitMu sync.Mutex
			for _, path := range tt.links {
				p := path
				f.mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
					hitMu.Lock()
					hit = p
					hitMu.Unlock()
					w.Write(payload)
				})
			}

			actionID := fmt.Sprintf("6%d", len(tt.links))
			linkObj := map[string]interface{}{}
			for name, path := range tt.links {
				linkObj[name] = map[string]interface{}{"href": f.srv.URL + path}
			}
			deployment := map[string]interface{}{
				"id": actionID,
				"deployment": map[string]interface{}{
					"chunks": []interface{}{
						map[string]interface{}{
							"name":    "foo",
							"version": "1.2",
							"artifacts": []interface{}{
								map[string]interface{}{
									"size":   len(payload),
									"hashes": map[string]interface{}{"sha1": sha1hex(payload)},
									"_links": linkObj,
								},
							},
						},
					},
				},
			}
			f.mux.HandleFunc("/deploy/"+actionID, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(deployment)
			})
			root := map[string]interface{}{
				"_links": map[string]interface{}{
					"deploymentBase": map[string]interface{}{"href": f.srv.URL + "/deploy/" + actionID},
				},
			}

			if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
				t.Fatalf("ProcessDeployment error: %v", err)
			}
			f.svc.Shutdown()

			hitMu.Lock()
			defer hitMu.Unlock()
			if hit != tt.wantPath {
				t.Errorf("downloaded from %q, want %q", hit, tt.wantPath)
			}
		})
	}
}

func TestProcessDeployment_MissingDownloadURL(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")
	root := f.serveDeployment("70", payload, sha1hex(payload), nil)

	err := f.svc.ProcessDeployment(context.Background(), root)
	if !errors.Is(err, model.ErrJSONResponseParse) {
		t.Fatalf("expected ErrJSONResponseParse, got %v", err)
	}

	fbs := f.feedbackList()
	if len(fbs) != 1 || fbs[0].Finished != "failure" || fbs[0].Execution != "closed" {
		t.Errorf("feedback = %+v", fbs)
	}
}

func TestHandleInstallComplete_Failure(t *testing.T) {
	f := newDeployFixture(t)
	payload := []byte("abcdefg")
	root := f.serveDeployment("80", payload, sha1hex(payload), map[string]string{"download": "/download/80"})

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("ProcessDeployment error: %v", err)
	}
	f.svc.Shutdown()

	installs := f.installRequests()
	if len(installs) != 1 {
		t.Fatalf("installer-ready calls = %d, want 1", len(installs))
	}
	installs[0].Complete(model.OutcomeFailure)
	f.svc.HandleInstallComplete(<-f.svc.Completions())

	fbs := f.feedbackList()
	last := fbs[len(fbs)-1]
	if last.Execution != "closed" || last.Finished != "failure" || last.Detail != "Failed to install software bundle." {
		t.Errorf("terminal feedback = %+v", last)
	}
	if got := f.svc.ActionID(); got != "" {
		t.Errorf("action id = %q, want empty", got)
	}
	if _, err := os.Stat(f.cfg.Hawkbit.BundleDownloadLocation); !os.IsNotExist(err) {
		t.Error("bundle file should be deleted")
	}
}

func TestHandleInstallComplete_StaleCompletionIsNoop(t *testing.T) {
	f := newDeployFixture(t)

	f.svc.HandleInstallComplete(model.OutcomeSuccess)

	if len(f.feedbackList()) != 0 {
		t.Error("stale completion must not send feedback")
	}
}

// fakeRebooter 记录重启调用
type fakeRebooter struct {
	mu     sync.Mutex
	called bool
}

func (r *fakeRebooter) Reboot() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = true
	return nil
}

func TestHandleInstallComplete_PostUpdateReboot(t *testing.T) {
	f := newDeployFixture(t)
	f.cfg.Hawkbit.PostUpdateReboot = true
	rebooter := &fakeRebooter{}
	f.svc.SetRebooter(rebooter)

	payload := []byte("abcdefg")
	root := f.serveDeployment("90", payload, sha1hex(payload), map[string]string{"download": "/download/90"})

	if err := f.svc.ProcessDeployment(context.Background(), root); err != nil {
		t.Fatalf("ProcessDeployment error: %v", err)
	}
	f.svc.Shutdown()

	installs := f.installRequests()
	installs[0].Complete(model.OutcomeSuccess)
	f.svc.HandleInstallComplete(<-f.svc.Completions())

	rebooter.mu.Lock()
	defer rebooter.mu.Unlock()
	if !rebooter.called {
		t.Error("rebooter must be invoked after successful install with post_update_reboot")
	}
}

func TestReportProgress_NoopWithoutAction(t *testing.T) {
	f := newDeployFixture(t)

	f.svc.ReportProgress("installing 50%")

	if len(f.feedbackList()) != 0 {
		t.Error("progress without an active action must not send feedback")
	}
}
