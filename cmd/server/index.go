// cmd/server/index.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Corphon/StoryEngine/internal/services"
	"github.com/Corphon/StoryEngine/internal/storage"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Regenerate index.json from the stories directory",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().String("content-dir", "", "content directory (overrides CONTENT_DIR)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fileStorage, err := storage.NewFileStorage(cfg.ContentDir, nil)
	if err != nil {
		return err
	}

	discovery := services.NewDiscovery(fileStorage, services.DiscoveryConfig{Logger: logger})
	index, err := discovery.GenerateIndex(cmd.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoStoriesDir) {
			cmd.Printf("No stories directory in %s, index not written.\n", cfg.ContentDir)
			return nil
		}
		return fmt.Errorf("generate index: %w", err)
	}

	cmd.Printf("Wrote %s with %d stories.\n", fileStorage.Path("", services.IndexFile), len(index.Stories))
	return nil
}
