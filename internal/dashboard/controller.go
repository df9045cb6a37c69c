// Package dashboard holds the selected-project view state for interactive
// consumers. All derived numbers come from the engine snapshot; nothing
// here recomputes KPIs.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"sitetrack/internal/engine"
)

// Service is the slice of the engine the controller needs.
type Service interface {
	LoadSnapshot(ctx context.Context, projectID string) (engine.Snapshot, error)
}

var ErrNoSelection = errors.New("no project selected")

// Controller tracks which project is selected and its latest snapshot.
// Loads are tagged with a generation counter so a slow response for a
// previously selected project can never overwrite the current one.
type Controller struct {
	svc Service

	mu        sync.Mutex
	projectID string
	snapshot  engine.Snapshot
	loaded    bool
	gen       uint64
}

func NewController(svc Service) *Controller {
	return &Controller{svc: svc}
}

// Select switches to a project and loads its snapshot. The previous
// selection stays visible if the load fails.
func (c *Controller) Select(ctx context.Context, projectID string) (engine.Snapshot, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	snap, err := c.svc.LoadSnapshot(ctx, projectID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// a newer Select or Reset won; discard this response
		return snap, nil
	}
	c.projectID = projectID
	c.snapshot = snap
	c.loaded = true
	return snap, nil
}

// Refresh reloads the currently selected project.
func (c *Controller) Refresh(ctx context.Context) (engine.Snapshot, error) {
	c.mu.Lock()
	id := c.projectID
	c.mu.Unlock()
	if id == "" {
		return engine.Snapshot{}, ErrNoSelection
	}
	return c.Select(ctx, id)
}

// Current returns the last loaded snapshot without touching storage.
func (c *Controller) Current() (engine.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.loaded
}

// Selected returns the selected project id, empty when none.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}

// Reset clears the selection, e.g. after the project is deleted.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.projectID = ""
	c.snapshot = engine.Snapshot{}
	c.loaded = false
}
