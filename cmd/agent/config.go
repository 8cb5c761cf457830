package main

import (
	"fmt"
	"os"

	"neoupdate/internal/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var initExample string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看或生成配置",
	Long:  "打印当前生效的配置（令牌脱敏），或生成示例配置文件。",
	Run: func(cmd *cobra.Command, args []string) {
		if initExample != "" {
			if err := config.WriteExample(initExample); err != nil {
				pterm.Error.Printf("Failed to write example config: %v\n", err)
				os.Exit(1)
			}
			pterm.Success.Printf("Example config written to %s\n", initExample)
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			pterm.Error.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		dump, err := cfg.Dump()
		if err != nil {
			pterm.Error.Printf("Failed to dump config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(dump)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVar(&initExample, "init", "", "生成示例配置文件到指定路径")
}
