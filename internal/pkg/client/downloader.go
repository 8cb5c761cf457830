/**
 * 软件包下载器
 * @author: sun977
 * @date: 2026.07.22
 * @description: 把软件包流式写入本地文件并增量计算SHA-1
 */
package client

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	model "neoupdate/internal/model/client"
	"neoupdate/internal/pkg/logger"
)

const (
	// maxDownloadRedirects 下载最多跟随8次重定向
	maxDownloadRedirects = 8
	// downloadBufferSize 流式读取缓冲区
	downloadBufferSize = 64 * 1024
	// lowSpeedLimit 低速阈值（字节/秒）
	lowSpeedLimit = 100
	// lowSpeedTime 低速持续该时长后中断传输
	lowSpeedTime = 60 * time.Second
)

// Download 下载软件包到target并返回SHA-1与平均速度
// 已存在的文件会被截断；速度低于100B/s持续60秒时中断
func (c *RestClient) Download(ctx context.Context, url, target string, expectedSize int64) (string, float64, error) {
	fp, err := os.Create(target)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file for download: %w", err)
	}
	defer fp.Close()

	// 下载客户端单独构造：重定向上限8次，不限制整体耗时
	httpClient := &http.Client{
		Transport: c.client.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// via包含初始请求，允许最多8跳重定向
			if len(via) > maxDownloadRedirects {
				return fmt.Errorf("stopped after %d redirects", maxDownloadRedirects)
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	if auth, ok := c.AuthHeader(); ok {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, &model.HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	// 低速看门狗：每秒检查一次吞吐，持续低于阈值则取消传输
	written := make(chan int64, 64)
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var windowBytes int64
		var slowFor time.Duration
		for {
			select {
			case n, ok := <-written:
				if !ok {
					return
				}
				windowBytes += n
			case <-ticker.C:
				if windowBytes < lowSpeedLimit {
					slowFor += time.Second
				} else {
					slowFor = 0
				}
				windowBytes = 0
				if slowFor >= lowSpeedTime {
					cancel(fmt.Errorf("transfer speed below %d B/s for %s", lowSpeedLimit, lowSpeedTime))
					return
				}
			}
		}
	}()

	checksum := sha1.New()
	buf := make([]byte, downloadBufferSize)
	var total int64
	var readErr error
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := fp.Write(buf[:n]); werr != nil {
				readErr = fmt.Errorf("write bundle file: %w", werr)
				break
			}
			checksum.Write(buf[:n])
			total += int64(n)
			select {
			case written <- int64(n):
			default:
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				readErr = fmt.Errorf("execute request: %w", cause)
			} else {
				readErr = fmt.Errorf("execute request: %w", rerr)
			}
			break
		}
	}
	close(written)
	<-watchdogDone

	if readErr != nil {
		return "", 0, readErr
	}

	elapsed := time.Since(start).Seconds()
	speed := float64(total)
	if elapsed > 0 {
		speed = float64(total) / elapsed
	}

	if expectedSize > 0 && total != expectedSize {
		logger.Debugf("Downloaded %d bytes, expected %d", total, expectedSize)
	}

	return hex.EncodeToString(checksum.Sum(nil)), speed, nil
}
