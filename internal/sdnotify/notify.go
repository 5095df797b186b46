// Package sdnotify reports readiness and status to systemd.
//
// Outside a systemd unit (no NOTIFY_SOCKET) every call is a no-op.
package sdnotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	send   func(state string) (bool, error)
}

// New creates a notifier that writes to $NOTIFY_SOCKET.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (n *Notifier) notify(state string) bool {
	sent, err := n.send(state)
	if err != nil {
		n.logger.Debug("sd_notify_error", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready tells systemd startup is finished.
func (n *Notifier) Ready() bool {
	return n.notify(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() bool {
	return n.notify(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) bool {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings the systemd watchdog at half the configured WatchdogSec
// until ctx is done. Returns immediately if the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	if interval == 0 {
		return nil
	}
	return n.ping(ctx, interval/2)
}

func (n *Notifier) ping(ctx context.Context, every time.Duration) error {
	n.logger.Debug("watchdog_started", "interval", every.String())

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
