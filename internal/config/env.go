package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv 加载.env文件中的环境变量
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖
func LoadDotEnv() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}
