// cmd/server/root.go
package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/config"
	"github.com/Corphon/StoryEngine/internal/utils"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "story-engine",
	Short: "Story content validation and local editing server",
	Long: `story-engine serves story content from a local content directory and
exposes an editor API that validates every write before it reaches disk.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (default $"+config.ConfigFileEnv+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default .env)")
}

// loadConfig 加载配置，flags 中显式设置的 content-dir 优先
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return nil, err
	}

	if flag := cmd.Flags().Lookup("content-dir"); flag != nil && flag.Changed {
		cfg.ContentDir = config.ResolveContentDir(flag.Value.String())
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return utils.InitLogger(utils.LoggerConfig{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogFile,
	})
}
