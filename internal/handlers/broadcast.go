package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/tables"
)

const (
	refreshTimeout = 15 * time.Second
	maxEventRetry  = 5
)

// channelDebouncer manages per-channel trailing-edge debounce timers.
// Each channel resets its own timer; the timer fires delay after the last
// trigger of that channel.
type channelDebouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newChannelDebouncer(delay time.Duration) *channelDebouncer {
	if delay <= 0 {
		delay = compose.DefaultDebounce
	}
	return &channelDebouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// trigger resets the timer for the given channel. When the timer fires it
// calls fn on its own goroutine.
func (d *channelDebouncer) trigger(channel string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[channel]; ok {
		t.Stop()
	}
	d.timers[channel] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, channel)
		d.mu.Unlock()
		fn()
	})
}

// stop cancels all pending timers and ignores later triggers.
func (d *channelDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for _, t := range d.timers {
		t.Stop()
	}
}

// tablesForEvent maps a Docker event to the tables whose rows it can change.
func tablesForEvent(evt docker.Event) []tables.Name {
	switch evt.Type {
	case "container":
		return []tables.Name{tables.Containers, tables.Stacks}
	case "image":
		return []tables.Name{tables.Images}
	case "network":
		return []tables.Name{tables.Networks}
	case "volume":
		return []tables.Name{tables.Volumes}
	case "config":
		return []tables.Name{tables.Configs}
	}
	return nil
}

// TriggerRefresh schedules a debounced refresh of each named table. Tables
// nobody has open are skipped; they are refreshed when next opened.
func (app *App) TriggerRefresh(names ...tables.Name) {
	for _, name := range names {
		if app.Hub.Sessions(name) == 0 {
			continue
		}
		app.debouncer.trigger(string(name), func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			changed, err := app.Hub.Refresh(ctx, name)
			if err != nil {
				slog.Warn("table refresh", "table", name, "err", err)
				return
			}
			slog.Debug("table refresh", "table", name, "changed", changed)
		})
	}
}

// ComposeChanged is the compose watcher callback.
func (app *App) ComposeChanged(stackName string) {
	slog.Debug("compose changed", "stack", stackName)
	app.TriggerRefresh(tables.Stacks)
}

// StartRefreshWatcher subscribes to Docker events and refreshes the affected
// tables through the debouncer. On stream errors it retries with exponential
// backoff; after repeated failures it gives up and tables only refresh when
// opened.
func (app *App) StartRefreshWatcher(ctx context.Context) {
	go app.runRefreshWatcherLoop(ctx)
}

func (app *App) runRefreshWatcherLoop(ctx context.Context) {
	defer app.debouncer.stop()

	failures := 0
	backoff := 1 * time.Second

	for {
		eventCh, errCh := app.Docker.Events(ctx)

		err := app.consumeEvents(ctx, eventCh, errCh)
		if ctx.Err() != nil {
			return // clean shutdown
		}

		failures++
		if failures > maxEventRetry {
			slog.Error("docker events: too many failures, live refresh disabled", "failures", failures, "lastErr", err)
			<-ctx.Done()
			return
		}

		slog.Warn("docker events: retrying", "attempt", failures, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// consumeEvents reads Docker events until the stream closes or errors.
func (app *App) consumeEvents(ctx context.Context, eventCh <-chan docker.Event, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-eventCh:
			if !ok {
				return fmt.Errorf("docker events channel closed")
			}
			slog.Debug("docker event", "type", evt.Type, "action", evt.Action, "stack", evt.Stack)
			app.TriggerRefresh(tablesForEvent(evt)...)

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			return fmt.Errorf("docker events: %w", err)
		}
	}
}
