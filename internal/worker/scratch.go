package worker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/reelworks/reelpress/internal/logger"
)

// SweepScratch removes files under dir whose modification time is older
// than ttl. Jobs clean up after themselves; the sweep catches files
// orphaned by crashed or killed workers.
func SweepScratch(ctx context.Context, dir string, ttl time.Duration) (int, error) {
	log := logger.FromContext(ctx)
	cutoff := time.Now().Add(-ttl)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("could not remove stale scratch file", "path", path, "error", err.Error())
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("swept stale scratch files", "dir", dir, "removed", removed)
	}
	return removed, nil
}

// RunScratchSweeper sweeps on an interval until the context is cancelled.
func RunScratchSweeper(ctx context.Context, dir string, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := SweepScratch(ctx, dir, ttl); err != nil {
				logger.FromContext(ctx).Warn("scratch sweep failed", "error", err.Error())
			}
		}
	}
}
