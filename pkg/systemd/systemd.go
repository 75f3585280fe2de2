// Package systemd speaks the sd_notify protocol to the service manager.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify states. The zero value talks to systemd.
type Notifier struct {
	// Send replaces daemon.SdNotify, e.g. in tests.
	Send func(unsetEnv bool, state string) (bool, error)
}

func (n Notifier) send(state string) error {
	send := n.Send
	if send == nil {
		send = daemon.SdNotify
	}
	_, err := send(false, state)
	return err
}

func (n Notifier) Ready() error    { return n.send(daemon.SdNotifyReady) }
func (n Notifier) Stopping() error { return n.send(daemon.SdNotifyStopping) }
func (n Notifier) Watchdog() error { return n.send(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(format string, args ...any) error {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// WatchdogInterval returns the configured watchdog timeout, or 0 when the
// watchdog is disabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
