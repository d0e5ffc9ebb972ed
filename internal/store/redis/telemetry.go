// Package redis mirrors the manager's notifications and mapped input
// frames to Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/manager"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultBuffer is the number of frames queued before new ones are dropped
	DefaultBuffer = 256
	// DefaultOpTimeout bounds a single write
	DefaultOpTimeout = time.Second
)

// Client is the subset of *redis.Client the sink writes through.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Event is the JSON payload published on ChannelEvents.
type Event struct {
	Type         string    `json:"type"`
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Variant      string    `json:"variant,omitempty"`
	PowerCycling bool      `json:"power_cycling,omitempty"`
	WasTarget    bool      `json:"was_target,omitempty"`
	Status       string    `json:"status,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	At           time.Time `json:"at"`
}

type frame struct {
	state  controller.State
	motion controller.Motion
}

// Telemetry is a non-blocking sink: producers never wait on Redis, frames
// are dropped while the queue is full.
type Telemetry struct {
	client    Client
	logger    logger.Logger
	maxLen    int64
	opTimeout time.Duration

	frames  chan frame
	events  chan Event
	dropped atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelemetry(client Client, maxLen int64, buffer int, log logger.Logger) *Telemetry {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Telemetry{
		client:    client,
		logger:    log.With(logger.Component("telemetry")),
		maxLen:    maxLen,
		opTimeout: DefaultOpTimeout,
		frames:    make(chan frame, buffer),
		events:    make(chan Event, buffer),
	}
}

// Listener returns the manager subscription feeding the sink.
func (t *Telemetry) Listener() manager.Listener {
	return manager.Listener{
		ControllerPlugged: func(c controller.Controller, cycling bool) {
			t.enqueue(controllerEvent(EventPlugged, c, cycling, false))
		},
		ControllerUnplugged: func(c controller.Controller, cycling, wasTarget bool) {
			t.enqueue(controllerEvent(EventUnplugged, c, cycling, wasTarget))
		},
		ControllerSelected: func(c controller.Controller) {
			t.enqueue(controllerEvent(EventSelected, c, false, false))
		},
		StatusChanged: func(s manager.Status, attempts int) {
			t.enqueue(Event{Type: EventStatus, Status: s.String(), Attempts: attempts, At: time.Now()})
		},
		Initialized: func() {
			t.enqueue(Event{Type: EventInitialized, At: time.Now()})
		},
	}
}

func controllerEvent(typ string, c controller.Controller, cycling, wasTarget bool) Event {
	return Event{
		Type:         typ,
		ID:           c.ID(),
		Name:         c.String(),
		Variant:      c.Variant().String(),
		PowerCycling: cycling,
		WasTarget:    wasTarget,
		At:           time.Now(),
	}
}

// UpdateInputs queues a mapped frame. It runs on the target's read loop.
func (t *Telemetry) UpdateInputs(state controller.State, motion controller.Motion) {
	select {
	case t.frames <- frame{state: state, motion: motion}:
	default:
		t.dropped.Add(1)
	}
}

func (t *Telemetry) enqueue(e Event) {
	select {
	case t.events <- e:
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns how many frames and events were discarded.
func (t *Telemetry) Dropped() uint64 { return t.dropped.Load() }

// Start launches the writer. Calling it while running is a no-op.
func (t *Telemetry) Start(parent context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)

	t.logger.Info("telemetry started", logger.String("stream", KeyInputs), logger.String("channel", ChannelEvents))
}

// Stop ends the writer and waits for it. Queued items are discarded.
func (t *Telemetry) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	t.logger.Info("telemetry stopped", logger.Uint64("dropped", t.Dropped()))
}

func (t *Telemetry) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-t.events:
			if err := t.writeEvent(ctx, e); err != nil {
				t.logger.Warn("failed to publish event", logger.String("type", e.Type), logger.Error(err))
			}
		case f := <-t.frames:
			if err := t.writeFrame(ctx, f); err != nil {
				t.logger.Debug("failed to append frame", logger.Error(err))
			}
		}
	}
}

func (t *Telemetry) writeEvent(parent context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(parent, t.opTimeout)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := t.client.Publish(ctx, ChannelEvents, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	target, mirror := targetMirror(e)
	if !mirror {
		return nil
	}
	if err := t.client.Set(ctx, KeyTarget, target, 0).Err(); err != nil {
		return fmt.Errorf("failed to mirror target: %w", err)
	}
	return nil
}

// targetMirror reports the value KeyTarget takes after e.
func targetMirror(e Event) (string, bool) {
	switch {
	case e.Type == EventSelected:
		return e.ID, true
	case e.Type == EventUnplugged && e.WasTarget && !e.PowerCycling:
		return "", true
	default:
		return "", false
	}
}

func (t *Telemetry) writeFrame(parent context.Context, f frame) error {
	ctx, cancel := context.WithTimeout(parent, t.opTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: KeyInputs,
		Values: frameValues(f),
	}
	if t.maxLen > 0 {
		args.MaxLen = t.maxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append frame: %w", err)
	}
	return nil
}

func frameValues(f frame) map[string]interface{} {
	s := f.state
	return map[string]interface{}{
		"buttons": uint32(s.Buttons),
		"lx":      s.Axes[controller.AxisLeftX],
		"ly":      s.Axes[controller.AxisLeftY],
		"rx":      s.Axes[controller.AxisRightX],
		"ry":      s.Axes[controller.AxisRightY],
		"lt":      s.Axes[controller.AxisLeftTrigger],
		"rt":      s.Axes[controller.AxisRightTrigger],
		"gx":      f.motion.Gyro[0],
		"gy":      f.motion.Gyro[1],
		"gz":      f.motion.Gyro[2],
		"ts":      s.Timestamp.UnixMilli(),
	}
}
