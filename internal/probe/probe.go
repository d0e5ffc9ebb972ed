// Package probe binds a raw HID path to a handle on a vendor-extended
// protocol channel, when one of the channel's devices owns that path.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

var ErrNoMatch = errors.New("no vendor handle for path")

// Channel is a vendor protocol library that tracks its own device handles.
type Channel interface {
	// Connect refreshes the handle set and returns how many devices it holds.
	Connect() (int, error)
	Handles() []controller.Handle
	Disconnect(h controller.Handle)
	DisconnectAll()
}

type Prober struct {
	ch      Channel
	timeout time.Duration
	backoff time.Duration
	log     logger.Logger
}

func New(ch Channel, timeout, backoff time.Duration, log logger.Logger) *Prober {
	return &Prober{
		ch:      ch,
		timeout: timeout,
		backoff: backoff,
		log:     log.With(logger.Component("probe")),
	}
}

// Match connects the channel and returns the handle whose path equals
// devicePath. Connect is retried only while it fails, within the timeout.
func (p *Prober) Match(ctx context.Context, devicePath string) (*controller.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		count int
		err   error
	)
	for {
		count, err = p.ch.Connect()
		if err == nil {
			break
		}
		p.log.Debug("vendor channel connect failed", logger.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect vendor channel: %w", err)
		case <-time.After(p.backoff):
		}
	}

	if count == 0 {
		return nil, ErrNoMatch
	}

	for _, h := range p.ch.Handles() {
		if strings.EqualFold(h.Path, devicePath) {
			h := h
			return &h, nil
		}
	}
	return nil, ErrNoMatch
}

func (p *Prober) Disconnect(h controller.Handle) { p.ch.Disconnect(h) }

func (p *Prober) DisconnectAll() { p.ch.DisconnectAll() }
