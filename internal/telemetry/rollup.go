package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quartzlab/pulsebus/internal/observability"
	"github.com/quartzlab/pulsebus/internal/schema"
)

// ensureRollupLoop starts the rollup ticker on first use. The loop runs
// until Shutdown; the rollup file is append-only and never rewritten, so it
// accumulates longitudinal history distinct from the always-current state
// file.
func (c *Collector) ensureRollupLoop() {
	if c.cfg.RollupFile == "" {
		return
	}
	c.rollupOnce.Do(func() {
		c.mu.Lock()
		closed := c.closed
		if !closed {
			c.workerWG.Add(1)
		}
		c.mu.Unlock()
		if closed {
			return
		}
		go c.rollupLoop()
	})
}

func (c *Collector) rollupLoop() {
	defer c.workerWG.Done()
	ticker := time.NewTicker(c.cfg.RollupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.workerCtx.Done():
			return
		case <-ticker.C:
			c.appendRollup()
		}
	}
}

func (c *Collector) appendRollup() {
	snap := c.Snapshot()
	entry := schema.RollupEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Counts:      snap.Counts,
		TotalEvents: snap.TotalEvents(),
		LastError:   snap.LastError,
	}
	if err := appendRollupLine(c.cfg.RollupFile, entry); err != nil {
		if c.persistFailures != nil {
			c.persistFailures.Add(context.Background(), 1)
		}
		observability.Log().Warn("telemetry rollup append failed",
			observability.F("path", c.cfg.RollupFile),
			observability.F("error", err))
		return
	}
	if c.rollupWrites != nil {
		c.rollupWrites.Add(context.Background(), 1)
	}
}

func appendRollupLine(path string, entry schema.RollupEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
