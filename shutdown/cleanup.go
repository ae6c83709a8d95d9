package shutdown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"postforge/logging"
)

// tempPrefix matches the names storage gives files before renaming them
// into place.
const tempPrefix = ".tmp-"

// CleanupTempFiles returns a Func that removes partially written asset files
// under root. Failures are logged, never returned.
func CleanupTempFiles(logger *logging.Logger, root string) Func {
	return func(ctx context.Context) error {
		removed, failed := 0, 0
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				failed++
				logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
				return nil
			}
			removed++
			return nil
		})
		if err != nil {
			logger.Warn("temp file cleanup interrupted", zap.Int("removed", removed), zap.Error(err))
			return nil
		}
		if removed > 0 || failed > 0 {
			logger.Info("temp file cleanup complete", zap.Int("removed", removed), zap.Int("failed", failed))
		}
		return nil
	}
}
