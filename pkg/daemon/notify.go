package daemon

import (
	"log/slog"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
)

const (
	sdReady    = sd.SdNotifyReady
	sdStopping = sd.SdNotifyStopping
	sdWatchdog = sd.SdNotifyWatchdog
)

// Notifier reports process state to a service manager.
type Notifier interface {
	Notify(state string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) error { return nil }

// SystemdNotifier sends sd_notify messages over $NOTIFY_SOCKET. Outside of
// systemd every call is a no-op.
type SystemdNotifier struct {
	watchdog time.Duration
	logger   *slog.Logger
	once     sync.Once
}

// NewSystemdNotifier reads the watchdog settings from the environment.
func NewSystemdNotifier(logger *slog.Logger) *SystemdNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	iv, err := sd.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("invalid watchdog environment", "err", err)
		iv = 0
	}
	return &SystemdNotifier{watchdog: iv, logger: logger}
}

// WatchdogInterval is the WatchdogSec configured for the unit, or zero.
func (n *SystemdNotifier) WatchdogInterval() time.Duration { return n.watchdog }

// Notify sends state, e.g. "READY=1" or "STATUS=following".
func (n *SystemdNotifier) Notify(state string) error {
	sent, err := sd.SdNotify(false, state)
	if err != nil {
		return err
	}
	if !sent {
		n.once.Do(func() {
			n.logger.Debug("not running under systemd, notifications disabled")
		})
	}
	return nil
}
