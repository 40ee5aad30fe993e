// Package keepalive pings long-lived sessions on a cron schedule.
//
// A failed ping is logged and recorded, never retried or acted on. Callers
// that want to reconnect read Status and decide for themselves.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pinger is the part of a session the heartbeat needs.
type Pinger interface {
	Ping(ctx context.Context) error
	ID() string
}

// Status is the outcome of the last ping of one session.
type Status struct {
	At  time.Time
	Err error
}

// Heartbeat schedules pings.
type Heartbeat struct {
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	status  map[string]Status
}

// New returns a stopped heartbeat. Each ping is bounded by timeout;
// timeout <= 0 means 10 seconds.
func New(timeout time.Duration) *Heartbeat {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Heartbeat{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]Status),
	}
}

// Add schedules p with a standard cron spec or a descriptor such as
// "@every 30s". Adding a session twice replaces its schedule.
func (h *Heartbeat) Add(spec string, p Pinger) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.entries[p.ID()]; ok {
		h.cron.Remove(old)
		delete(h.entries, p.ID())
	}
	id, err := h.cron.AddFunc(spec, func() { h.Beat(context.Background(), p) })
	if err != nil {
		return fmt.Errorf("tinyodbc: invalid keepalive schedule %q: %w", spec, err)
	}
	h.entries[p.ID()] = id
	return nil
}

// Remove unschedules the session with the given id.
func (h *Heartbeat) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[id]; ok {
		h.cron.Remove(e)
		delete(h.entries, id)
		delete(h.status, id)
	}
}

// Len returns the number of scheduled sessions.
func (h *Heartbeat) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Beat pings p once and records the outcome.
func (h *Heartbeat) Beat(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := p.Ping(ctx)
	log := slog.Default().With("component", "keepalive", "session", p.ID())
	if err != nil {
		log.Warn("ping failed", "err", err)
	} else {
		log.Debug("ping ok")
	}
	h.mu.Lock()
	h.status[p.ID()] = Status{At: time.Now(), Err: err}
	h.mu.Unlock()
	return err
}

// Status returns the last recorded ping of a session.
func (h *Heartbeat) Status(id string) (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.status[id]
	return s, ok
}

func (h *Heartbeat) Start() { h.cron.Start() }

// Stop halts scheduling and waits for running pings.
func (h *Heartbeat) Stop() {
	<-h.cron.Stop().Done()
}
