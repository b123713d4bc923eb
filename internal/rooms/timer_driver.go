package rooms

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TimerDriver is a background ticker that advances every sync_auto room
// whose day deadline has passed, without any teacher interaction. A single
// room's failure is logged and the scan continues to the next room.
type TimerDriver struct {
	registry *Registry
	logger   *zap.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTimerDriver creates a driver that scans for due rooms every interval.
func NewTimerDriver(registry *Registry, logger *zap.Logger, interval time.Duration) *TimerDriver {
	return &TimerDriver{
		registry: registry,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the driver's scan loop in a goroutine. It returns
// immediately; call Stop (or cancel ctx) to shut it down.
func (d *TimerDriver) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *TimerDriver) run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.scanAndAdvance()
		}
	}
}

// scanAndAdvance advances every due room once. A single room's failure
// (e.g. a race with a teacher-initiated advance, or the room finishing in
// between) is logged and does not stop the scan from reaching the rest.
func (d *TimerDriver) scanAndAdvance() {
	now := time.Now()
	codes := d.registry.DueForAutoAdvance(now)
	for _, code := range codes {
		room, err := d.registry.Get(code)
		if err != nil {
			d.logger.Warn("auto-timer could not read room before advancing", zap.String("code", code), zap.Error(err))
			continue
		}
		if _, err := d.registry.AdvanceDay(code, SystemIdentity, room.CurrentDay, nil); err != nil {
			d.logger.Warn("auto-timer failed to advance room", zap.String("code", code), zap.Error(err))
			continue
		}
		d.logger.Info("auto-timer advanced room", zap.String("code", code), zap.Int("from_day", room.CurrentDay))
	}
}

// Stop signals the scan loop to exit and waits for it to finish.
func (d *TimerDriver) Stop() {
	close(d.stopCh)
	<-d.doneCh
}
