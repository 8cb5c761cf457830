/**
 * Agent端配置管理
 * @author: sun977
 * @date: 2026.07.14
 * @description: NeoUpdate Agent配置定义，负责加载和管理所有配置
 */
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config Agent配置
type Config struct {
	// 应用配置
	App *AppConfig `yaml:"app" mapstructure:"app"`

	// 本地管理服务配置
	Server *ServerConfig `yaml:"server" mapstructure:"server"`

	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// hawkBit服务端连接配置
	Hawkbit *HawkbitConfig `yaml:"hawkbit" mapstructure:"hawkbit"`

	// 安装器配置
	Installer *InstallerConfig `yaml:"installer" mapstructure:"installer"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`               // 应用名称
	Environment string `yaml:"environment" mapstructure:"environment"` // 运行环境
	Debug       bool   `yaml:"debug" mapstructure:"debug"`             // 调试模式
}

// ServerConfig 本地管理服务配置
// Agent在本机暴露一个只读的状态接口，供运维排查使用
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"` // 是否启用本地状态接口
	Host    string `yaml:"host" mapstructure:"host"`       // 监听地址
	Port    int    `yaml:"port" mapstructure:"port"`       // 监听端口
	Mode    string `yaml:"mode" mapstructure:"mode"`       // 运行模式 (debug/release/test)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/stderr/file)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// HawkbitConfig hawkBit服务端连接配置
// 初始化完成后视为只读，热加载不会触碰这里的字段
type HawkbitConfig struct {
	Server                 string            `yaml:"server" mapstructure:"server"`                                     // 服务端地址 host[:port]
	TenantID               string            `yaml:"tenant_id" mapstructure:"tenant_id"`                               // 租户ID
	ControllerID           string            `yaml:"controller_id" mapstructure:"controller_id"`                       // 设备控制器ID
	SSL                    bool              `yaml:"ssl" mapstructure:"ssl"`                                           // 是否使用HTTPS
	SSLVerify              bool              `yaml:"ssl_verify" mapstructure:"ssl_verify"`                             // 证书与主机名校验开关(同开同关)
	AuthToken              string            `yaml:"auth_token" mapstructure:"auth_token"`                             // TargetToken(优先)
	GatewayToken           string            `yaml:"gateway_token" mapstructure:"gateway_token"`                       // GatewayToken
	ConnectTimeout         time.Duration     `yaml:"connect_timeout" mapstructure:"connect_timeout"`                   // 连接超时
	RequestTimeout         time.Duration     `yaml:"request_timeout" mapstructure:"request_timeout"`                   // 整体请求超时
	RetryWait              time.Duration     `yaml:"retry_wait" mapstructure:"retry_wait"`                             // 轮询失败后的重试间隔
	BundleDownloadLocation string            `yaml:"bundle_download_location" mapstructure:"bundle_download_location"` // 软件包下载路径
	PostUpdateReboot       bool              `yaml:"post_update_reboot" mapstructure:"post_update_reboot"`             // 安装成功后是否重启系统
	SendHostInfo           bool              `yaml:"send_host_info" mapstructure:"send_host_info"`                     // identify时是否附带主机信息
	Device                 map[string]string `yaml:"device" mapstructure:"device"`                                     // identify时上报的设备属性
}

// InstallerConfig 安装器配置
// Agent只负责把下载完成的软件包交给外部安装器
type InstallerConfig struct {
	Command string   `yaml:"command" mapstructure:"command"` // 安装命令，软件包路径作为最后一个参数
	Args    []string `yaml:"args" mapstructure:"args"`       // 附加参数
}

// HasToken 是否配置了任一认证令牌
func (c *HawkbitConfig) HasToken() bool {
	return c.AuthToken != "" || c.GatewayToken != ""
}

// Dump 将当前配置导出为YAML字符串，用于调试输出
// 令牌字段会被脱敏
func (c *Config) Dump() (string, error) {
	copied := *c
	if copied.Hawkbit != nil {
		hb := *copied.Hawkbit
		if hb.AuthToken != "" {
			hb.AuthToken = "******"
		}
		if hb.GatewayToken != "" {
			hb.GatewayToken = "******"
		}
		copied.Hawkbit = &hb
	}

	data, err := yaml.Marshal(&copied)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// WriteExample 输出示例配置文件
func WriteExample(path string) error {
	cfg := defaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// defaultConfig 返回带默认值的配置对象
func defaultConfig() *Config {
	return &Config{
		App: &AppConfig{
			Name:        "NeoUpdate-Agent",
			Environment: "production",
			Debug:       false,
		},
		Server: &ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Mode:    "release",
		},
		Log: &LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/agent.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Hawkbit: &HawkbitConfig{
			Server:                 "localhost:8080",
			TenantID:               "DEFAULT",
			ControllerID:           "",
			SSL:                    true,
			SSLVerify:              true,
			ConnectTimeout:         20 * time.Second,
			RequestTimeout:         60 * time.Second,
			RetryWait:              5 * time.Minute,
			BundleDownloadLocation: "/tmp/bundle.raucb",
			Device:                 map[string]string{},
		},
		Installer: &InstallerConfig{},
	}
}
