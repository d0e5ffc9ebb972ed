package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/logger"
)

// Resumer restores drivers owed to devices left suspended.
type Resumer interface {
	Resume() bool
	Pending() map[string]string
}

// DriverReconciler drains the driver store on start, on every tick and on
// manual triggers.
type DriverReconciler struct {
	resumer       Resumer
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

func NewDriverReconciler(
	resumer Resumer,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *DriverReconciler {
	return &DriverReconciler{
		resumer:       resumer,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start reconciles immediately, then in the background.
func (dr *DriverReconciler) Start(ctx context.Context) error {
	dr.Reconcile()

	ticker := time.NewTicker(dr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				dr.Reconcile()
			case <-dr.manualTrigger:
				dr.logger.Info("manual driver reconcile triggered")
				dr.Reconcile()
			case <-dr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (dr *DriverReconciler) Stop() {
	close(dr.stopCh)
}

// Reconcile calls Resume until the store drains or a pass makes no
// progress. It returns how many devices got their driver back.
func (dr *DriverReconciler) Reconcile() int {
	restored := 0
	for len(dr.resumer.Pending()) > 0 {
		if !dr.resumer.Resume() {
			break
		}
		restored++
	}

	if left := len(dr.resumer.Pending()); left > 0 {
		dr.logger.Warn("driver reconcile left devices suspended",
			logger.Int("restored", restored),
			logger.Int("pending", left))
	} else if restored > 0 {
		dr.logger.Info("driver reconcile completed",
			logger.Int("restored", restored))
	} else {
		dr.logger.Debug("no drivers to reconcile")
	}

	return restored
}
