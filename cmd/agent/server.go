/*
 * @author: Sun977
 * @date: 2026.08.01
 * @description: Server 模式子命令 (轮询主循环)
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neoupdate/internal/app/agent"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	hawkbitServer string
	authToken     string
	gatewayToken  string
	runOnce       bool
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Agent 服务模式",
	Long: `以守护进程方式启动 Agent，按服务端建议的间隔轮询 hawkBit 并处理部署下发。

可以通过命令行参数指定服务端地址和认证令牌，也可以通过配置文件指定。
命令行参数优先级高于配置文件。--once 模式执行单次轮询后退出，
退出码 0 表示基础轮询成功，1 表示失败。

示例:
  NeoUpdate-Agent server --server hawkbit.example.com --token mytargettoken
  NeoUpdate-Agent server --once`,
	Run: func(cmd *cobra.Command, args []string) {
		// 绑定 Flags 到 Viper，这样 App 内部可以直接读取 Viper
		if hawkbitServer != "" {
			viper.Set("hawkbit.server", hawkbitServer)
			os.Setenv("NEOUPDATE_HAWKBIT_SERVER", hawkbitServer)
		}
		if authToken != "" {
			os.Setenv("NEOUPDATE_HAWKBIT_AUTH_TOKEN", authToken)
		}
		if gatewayToken != "" {
			os.Setenv("NEOUPDATE_HAWKBIT_GATEWAY_TOKEN", gatewayToken)
		}
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 定义 Flags
	serverCmd.Flags().StringVar(&hawkbitServer, "server", "", "hawkBit 服务端地址 (e.g. hawkbit.example.com:8080)")
	serverCmd.Flags().StringVar(&authToken, "token", "", "设备认证 TargetToken")
	serverCmd.Flags().StringVar(&gatewayToken, "gateway-token", "", "网关认证 GatewayToken")
	serverCmd.Flags().BoolVar(&runOnce, "once", false, "单次轮询后退出")
}

// runServer 服务模式主体
func runServer() {
	// 创建Agent应用实例
	app, err := agent.NewApp()
	if err != nil {
		log.Fatalf("Failed to create agent app: %v", err)
	}

	// one-shot模式：单次轮询后按结果退出
	if runOnce {
		if err := app.PollOnce(context.Background()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// 启动Agent应用
	if err2 := app.Start(); err2 != nil {
		log.Fatalf("Failed to start agent app: %v", err2)
	}

	// 等待中断信号以优雅地关闭服务
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down NeoUpdate-Agent...")

	// 给在途请求和下载worker留出收尾时间
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 停止Agent应用
	if err1 := app.Stop(ctx); err1 != nil {
		log.Fatal("Agent forced to shutdown:", err1)
	}

	log.Println("NeoUpdate-Agent exiting")
}
