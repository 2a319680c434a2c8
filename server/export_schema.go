package server

import (
	"fmt"
	"os"
	"path/filepath"

	"supergraph/utils"

	"go.uber.org/zap"
)

// ExportSchema writes sdl to path, creating parent directories
func ExportSchema(path, sdl string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create schema directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sdl), 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	utils.Logger.Info("Schema exported", zap.String("path", path), zap.Int("bytes", len(sdl)))
	return nil
}
