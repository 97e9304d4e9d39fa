package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modoterra/tailcast/pkg/hub"
)

// DefaultHealthInterval is used when no watchdog interval is configured.
const DefaultHealthInterval = 10 * time.Second

type statusSource interface {
	Status() hub.Status
}

// HealthLoop publishes hub health to the service manager every interval:
// a STATUS= line when it changes and a WATCHDOG=1 keepalive when enabled.
type HealthLoop struct {
	hub      statusSource
	notifier Notifier
	interval time.Duration
	watchdog bool
	logger   *slog.Logger

	last     string
	degraded bool
}

// NewHealthLoop creates a health loop for h.
func NewHealthLoop(h statusSource, n Notifier, interval time.Duration, watchdog bool, logger *slog.Logger) *HealthLoop {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthLoop{hub: h, notifier: n, interval: interval, watchdog: watchdog, logger: logger}
}

// Run ticks until ctx is cancelled.
func (hl *HealthLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(hl.interval)
	defer ticker.Stop()

	hl.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hl.tick()
		}
	}
}

func (hl *HealthLoop) tick() {
	st := hl.hub.Status()

	if st.Degraded != hl.degraded {
		hl.degraded = st.Degraded
		if st.Degraded {
			hl.logger.Warn("health degraded", "reason", st.Reason, "subscribers", st.Subscribers)
		} else {
			hl.logger.Info("health ok", "subscribers", st.Subscribers)
		}
	}

	if text := statusText(st); text != hl.last {
		hl.last = text
		if err := hl.notifier.Notify("STATUS=" + text); err != nil {
			hl.logger.Debug("sd_notify status failed", "err", err)
		}
	}
	if hl.watchdog {
		if err := hl.notifier.Notify(sdWatchdog); err != nil {
			hl.logger.Debug("sd_notify watchdog failed", "err", err)
		}
	}
}

func statusText(st hub.Status) string {
	state := "following"
	if st.Degraded {
		state = "degraded"
		if st.Reason != "" {
			state += " (" + st.Reason + ")"
		}
	}
	return fmt.Sprintf("%s; %d viewers, %d/%d lines, seq %d", state, st.Subscribers, st.Buffered, st.Capacity, st.LastSeq)
}
