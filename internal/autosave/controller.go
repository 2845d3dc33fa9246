// Package autosave debounces draft writes so rapid edits collapse into one
// persisted save.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// SnapshotFunc captures the current editor state. It must return a value
// that serializes deterministically with encoding/json.
type SnapshotFunc func() (interface{}, error)

// SaveFunc persists one snapshot, typically through the atomic quote save.
type SaveFunc func(ctx context.Context, snapshot interface{}) error

// Metrics receives flush outcomes ("saved", "skipped" or "failed").
type Metrics interface {
	AutosaveWrite(result string)
}

// Controller coalesces edit notifications into periodic dirty-checked
// saves. Observe is cheap and safe to call on every keystroke-level change;
// a save only runs after the configured quiet interval, and only when the
// serialized snapshot differs from the last one written.
type Controller struct {
	snapshot SnapshotFunc
	save     SaveFunc
	interval time.Duration
	logger   *slog.Logger
	metrics  Metrics

	mu        sync.Mutex
	timer     *time.Timer
	dirty     bool
	closed    bool
	lastSaved []byte

	wg sync.WaitGroup
}

// NewController builds a controller. interval is the quiet period after the
// last Observe before a save fires. metrics may be nil.
func NewController(snapshot SnapshotFunc, save SaveFunc, interval time.Duration, logger *slog.Logger, metrics Metrics) *Controller {
	return &Controller{
		snapshot: snapshot,
		save:     save,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

func (c *Controller) record(result string) {
	if c.metrics != nil {
		c.metrics.AutosaveWrite(result)
	}
}

// Observe marks the draft dirty and restarts the debounce window.
func (c *Controller) Observe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.dirty = true
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.tick)
		return
	}
	c.timer.Reset(c.interval)
}

func (c *Controller) tick() {
	c.wg.Add(1)
	defer c.wg.Done()
	if err := c.flush(context.Background()); err != nil {
		c.logger.Warn("autosave failed, will retry on next change", slog.Any("error", err))
		// Stay dirty and rearm so the next window retries without a
		// further Observe.
		c.mu.Lock()
		if !c.closed && c.dirty {
			if c.timer == nil {
				c.timer = time.AfterFunc(c.interval, c.tick)
			} else {
				c.timer.Reset(c.interval)
			}
		}
		c.mu.Unlock()
	}
}

// Flush forces an immediate dirty-checked save.
func (c *Controller) Flush(ctx context.Context) error {
	return c.flush(ctx)
}

func (c *Controller) flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	snapshot, err := c.snapshot()
	if err != nil {
		c.record("failed")
		return err
	}
	serialized, err := json.Marshal(snapshot)
	if err != nil {
		c.record("failed")
		return err
	}

	c.mu.Lock()
	if bytes.Equal(serialized, c.lastSaved) {
		// Content round-tripped back to the saved state; nothing to do.
		c.dirty = false
		c.mu.Unlock()
		c.record("skipped")
		return nil
	}
	c.mu.Unlock()

	if err := c.save(ctx, snapshot); err != nil {
		c.record("failed")
		return err
	}
	c.record("saved")

	c.mu.Lock()
	c.lastSaved = serialized
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Close stops the debounce timer and waits for an in-flight save. Pending
// dirty state is not flushed; callers wanting a final write call Flush
// first.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
