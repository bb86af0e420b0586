// cmd/server/serve.go
package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Corphon/StoryEngine/internal/app"
	"github.com/Corphon/StoryEngine/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serves the content directory, the site API and, unless disabled, the
editor API. Stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides PORT)")
	serveCmd.Flags().String("bind", "", "bind address (overrides BIND_ADDRESS)")
	serveCmd.Flags().String("content-dir", "", "content directory (overrides CONTENT_DIR)")
	serveCmd.Flags().String("base-path", "", "deployment base path (overrides BASE_PATH)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("initialize application failed", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}

// applyServeFlags 将显式设置的命令行参数覆盖到配置上
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		port, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = port
	}
	if flags.Changed("bind") {
		cfg.BindAddress, _ = flags.GetString("bind")
	}
	if flags.Changed("base-path") {
		cfg.BasePath, _ = flags.GetString("base-path")
	}
	return cfg.Validate()
}

