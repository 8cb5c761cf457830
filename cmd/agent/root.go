/*
 * @author: Sun977
 * @date: 2026.08.01
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "NeoUpdate-Agent",
	Short: "NeoUpdate-Agent hawkBit设备端更新代理",
	Long: `NeoUpdate-Agent 是设备侧的软件更新代理。
它通过 hawkBit DDI 协议轮询服务端，下载并校验软件包，交给外部安装器安装，并把进度和结果回报给服务端。

示例:
  1.启动常驻服务模式(默认)
	NeoUpdate-Agent server
  2.指定服务端和认证令牌
	NeoUpdate-Agent server --server hawkbit.example.com --token mytargettoken
  3.单次轮询后退出(适合定时任务)
	NeoUpdate-Agent server --once
`,
}

func Execute() {
	// 全局 Panic Recovery
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] Agent crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局 Flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别 (debug, info, warn, error)")

	// 绑定 Viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		// 配置加载器按目录搜索
		os.Setenv("NEOUPDATE_CONFIG_PATH", filepath.Dir(cfgFile))
	} else {
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // 读取环境变量

	if err := viper.ReadInConfig(); err == nil {
		pterm.Debug.Println("Using config file:", viper.ConfigFileUsed())
	}
}
