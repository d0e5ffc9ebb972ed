package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/logger"
)

const (
	// DefaultCyclerThreshold is how long a device may stay marked as
	// power-cycling before the mark is considered stale.
	DefaultCyclerThreshold = 2 * time.Minute
)

// CyclerMarks is the power-cycling bookkeeping of the registry.
type CyclerMarks interface {
	PowerCycling() map[string]time.Time
	SetPowerCycling(id string, on bool)
}

// Evictor drops the registry entry a stale mark was protecting.
type Evictor interface {
	Evict(id string)
}

// CyclerCollector clears power-cycling marks of devices that never came
// back and evicts the entries they kept alive.
type CyclerCollector struct {
	marks     CyclerMarks
	owed      Resumer
	evict     Evictor
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

func NewCyclerCollector(
	marks CyclerMarks,
	owed Resumer,
	evict Evictor,
	log logger.Logger,
	interval time.Duration,
	threshold time.Duration,
) *CyclerCollector {
	if threshold == 0 {
		threshold = DefaultCyclerThreshold
	}

	return &CyclerCollector{
		marks:     marks,
		owed:      owed,
		evict:     evict,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

func (cc *CyclerCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(cc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cc.Collect()
			case <-cc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (cc *CyclerCollector) Stop() {
	close(cc.stopCh)
}

// Collect drops stale marks and evicts their devices. Devices still owed a
// driver keep theirs.
func (cc *CyclerCollector) Collect() int {
	now := cc.now()
	var owed map[string]string
	if cc.owed != nil {
		owed = cc.owed.Pending()
	}

	cleared := 0
	for id, since := range cc.marks.PowerCycling() {
		if since.IsZero() {
			continue
		}
		age := now.Sub(since)
		if age < cc.threshold {
			continue
		}
		if _, ok := owed[id]; ok {
			continue
		}

		cc.marks.SetPowerCycling(id, false)
		if cc.evict != nil {
			cc.evict.Evict(id)
		}
		cc.logger.Info("cleared stale power-cycling mark",
			logger.String("id", id),
			logger.String("marked_for", age.String()))
		cleared++
	}

	if cleared == 0 {
		cc.logger.Debug("no stale power-cycling marks")
	}
	return cleared
}
