package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = "NEOUPDATE"
	}

	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	// 先加载.env文件，配置里可以引用环境变量
	LoadDotEnv()

	cl.viper.SetConfigType("yaml")

	// 设置环境变量前缀
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.bindEnvVars()
	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		// 尝试从环境变量获取配置文件路径
		if envPath := os.Getenv("NEOUPDATE_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	env := cl.getEnvironment()

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")

	// 尝试加载环境特定的配置文件
	configName := fmt.Sprintf("config.%s", env)
	cl.viper.SetConfigName(configName)

	if err := cl.viper.ReadInConfig(); err != nil {
		// 环境特定配置文件不存在时回退到默认配置文件
		cl.viper.SetConfigName("config")
		if err := cl.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	return nil
}

// getEnvironment 获取运行环境
func (cl *ConfigLoader) getEnvironment() string {
	env := os.Getenv("NEOUPDATE_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "production"
	}
	return env
}

// bindEnvVars 绑定环境变量
func (cl *ConfigLoader) bindEnvVars() {
	// App配置
	cl.viper.BindEnv("app.name", "NEOUPDATE_APP_NAME")
	cl.viper.BindEnv("app.environment", "NEOUPDATE_APP_ENVIRONMENT")
	cl.viper.BindEnv("app.debug", "NEOUPDATE_APP_DEBUG")

	// Server配置
	cl.viper.BindEnv("server.enabled", "NEOUPDATE_SERVER_ENABLED")
	cl.viper.BindEnv("server.host", "NEOUPDATE_SERVER_HOST")
	cl.viper.BindEnv("server.port", "NEOUPDATE_SERVER_PORT")

	// hawkBit配置
	cl.viper.BindEnv("hawkbit.server", "NEOUPDATE_HAWKBIT_SERVER")
	cl.viper.BindEnv("hawkbit.tenant_id", "NEOUPDATE_HAWKBIT_TENANT_ID")
	cl.viper.BindEnv("hawkbit.controller_id", "NEOUPDATE_HAWKBIT_CONTROLLER_ID")
	cl.viper.BindEnv("hawkbit.auth_token", "NEOUPDATE_HAWKBIT_AUTH_TOKEN")
	cl.viper.BindEnv("hawkbit.gateway_token", "NEOUPDATE_HAWKBIT_GATEWAY_TOKEN")
	cl.viper.BindEnv("hawkbit.bundle_download_location", "NEOUPDATE_HAWKBIT_BUNDLE_DOWNLOAD_LOCATION")

	// 安装器配置
	cl.viper.BindEnv("installer.command", "NEOUPDATE_INSTALLER_COMMAND")

	// 日志配置
	cl.viper.BindEnv("log.level", "NEOUPDATE_LOG_LEVEL")
	cl.viper.BindEnv("log.file_path", "NEOUPDATE_LOG_FILE_PATH")
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	// App默认值
	cl.viper.SetDefault("app.name", "NeoUpdate-Agent")
	cl.viper.SetDefault("app.environment", "production")
	cl.viper.SetDefault("app.debug", false)

	// Server默认值
	cl.viper.SetDefault("server.enabled", true)
	cl.viper.SetDefault("server.host", "127.0.0.1")
	cl.viper.SetDefault("server.port", 8090)
	cl.viper.SetDefault("server.mode", "release")

	// hawkBit默认值
	cl.viper.SetDefault("hawkbit.tenant_id", "DEFAULT")
	cl.viper.SetDefault("hawkbit.ssl", true)
	cl.viper.SetDefault("hawkbit.ssl_verify", true)
	cl.viper.SetDefault("hawkbit.connect_timeout", "20s")
	cl.viper.SetDefault("hawkbit.request_timeout", "60s")
	cl.viper.SetDefault("hawkbit.retry_wait", "5m")
	cl.viper.SetDefault("hawkbit.bundle_download_location", "/tmp/bundle.raucb")
	cl.viper.SetDefault("hawkbit.post_update_reboot", false)
	cl.viper.SetDefault("hawkbit.send_host_info", false)

	// 日志默认值
	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "json")
	cl.viper.SetDefault("log.output", "stdout")
	cl.viper.SetDefault("log.file_path", "./logs/agent.log")
	cl.viper.SetDefault("log.max_size", 100)
	cl.viper.SetDefault("log.max_backups", 3)
	cl.viper.SetDefault("log.max_age", 28)
	cl.viper.SetDefault("log.compress", true)
	cl.viper.SetDefault("log.caller", false)
}

// validateConfig 验证配置
func (cl *ConfigLoader) validateConfig(config *Config) error {
	if config.Hawkbit == nil || config.Hawkbit.Server == "" {
		return fmt.Errorf("hawkbit server is required")
	}

	if config.Hawkbit.ControllerID == "" {
		return fmt.Errorf("hawkbit controller_id is required")
	}

	if config.Hawkbit.TenantID == "" {
		return fmt.Errorf("hawkbit tenant_id is required")
	}

	if config.Hawkbit.BundleDownloadLocation == "" {
		return fmt.Errorf("hawkbit bundle_download_location is required")
	}

	if config.Server != nil && config.Server.Enabled {
		if config.Server.Port <= 0 || config.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d", config.Server.Port)
		}
	}

	// 两个令牌都配置时TargetToken优先，这里不视为错误
	// 下载目录必须存在
	dir := filepath.Dir(config.Hawkbit.BundleDownloadLocation)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory %s: %w", dir, err)
	}

	return nil
}

// GetConfigPath 获取配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfig 使用默认搜索路径加载配置
func LoadConfig() (*Config, error) {
	loader := NewConfigLoader("", "NEOUPDATE")
	return loader.LoadConfig()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	configPath := filepath.Dir(configFile)
	loader := NewConfigLoader(configPath, "NEOUPDATE")
	return loader.LoadConfig()
}
