package telemetry

import (
	"context"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/quartzlab/pulsebus/internal/observability"
)

// persistOnce takes a fresh snapshot and overwrites the state file with it.
// At most one persist task is in flight at a time; events arriving while it
// runs coalesce into the next one. Failures are logged and swallowed: the
// state file is a best-effort cache, not a durability guarantee.
func (c *Collector) persistOnce() {
	defer c.workerWG.Done()
	defer func() {
		c.mu.Lock()
		c.persistPending = false
		c.mu.Unlock()
	}()

	// A pending write races Shutdown; finishing it is cheap and leaves the
	// cache current, so the task runs to completion and Shutdown waits.
	snap := c.Snapshot()
	if err := writeStateFile(c.cfg.StateFile, snap); err != nil {
		if c.persistFailures != nil {
			c.persistFailures.Add(context.Background(), 1)
		}
		observability.Log().Warn("telemetry state persist failed",
			observability.F("path", c.cfg.StateFile),
			observability.F("error", err))
	}
}

// writeStateFile overwrites path atomically: the snapshot lands in a temp
// file first and is renamed into place, so readers never observe a partial
// write.
func writeStateFile(path string, snap any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (c *Collector) removeStateFile() {
	if c.cfg.StateFile == "" {
		return
	}
	if err := os.Remove(c.cfg.StateFile); err != nil && !os.IsNotExist(err) {
		observability.Log().Warn("telemetry state file removal failed",
			observability.F("path", c.cfg.StateFile),
			observability.F("error", err))
	}
}
