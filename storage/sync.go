package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pyrothor/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ruleFileExtensions are the file extensions recognized as YARA rule files.
var ruleFileExtensions = map[string]bool{
	".yar":  true,
	".yara": true,
}

// SyncFromDirectory imports every rule file found directly in dir (not
// recursing) into the store and returns the number imported. A file that
// cannot be read is logged and skipped; partial success is reported through
// the count. The only hard failure is the directory listing itself.
func SyncFromDirectory(ctx context.Context, store *RuleStore, dir string, logger *zap.SugaredLogger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read rules directory %s: %w", dir, err)
	}

	synced := 0
	for _, entry := range entries {
		if entry.IsDir() || !ruleFileExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warnw("skipping unreadable rule file", "path", path, "error", err)
			continue
		}

		now := time.Now().UTC()
		rule := &core.Rule{
			ID:          uuid.New().String(),
			Name:        strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Content:     string(content),
			Author:      "Auto-imported",
			Description: fmt.Sprintf("Imported from %s", path),
			Tags:        []string{"auto-imported"},
			Severity:    core.SeverityMedium,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     "1.0",
			ContentHash: core.HashContent(string(content)),
			Source:      path,
		}

		if err := store.PutRule(ctx, rule); err != nil {
			logger.Warnw("skipping rule file that failed to store", "path", path, "error", err)
			continue
		}
		synced++
	}

	logger.Infow("synced rules from directory", "dir", dir, "count", synced)
	return synced, nil
}
