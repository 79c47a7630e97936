// Package signalbus connects to the signal-cli daemon over D-Bus: session
// negotiation, the command client, and the notification subscription.
package signalbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.asamk.Signal"
	busInterface  = "org.asamk.Signal"
	defaultPath   = dbus.ObjectPath("/org/asamk/Signal")
	methodSelfNum = busInterface + ".getSelfNumber"
)

// Session is the negotiated daemon handle: one bus connection and the object
// path that answered. Initialized once at startup, read-only afterwards,
// never re-negotiated.
type Session struct {
	Conn   *dbus.Conn
	Object dbus.BusObject
	// Via names the bus/path combination that succeeded, for logging.
	Via string
}

// candidate is one bus/path combination to try, in priority order.
type candidate struct {
	label      string
	sessionBus bool
	path       dbus.ObjectPath
	verifySelf bool // reject the handle if getSelfNumber mismatches the account
}

// scopedPath builds the account-scoped object path the daemon exports in
// multi-account mode ('+' is not a valid path character and becomes '_').
func scopedPath(account string) dbus.ObjectPath {
	return defaultPath + dbus.ObjectPath("/"+strings.ReplaceAll(account, "+", "_"))
}

func candidates(account string, useSessionBus bool) []candidate {
	if !useSessionBus {
		return []candidate{
			{label: "system bus, scoped path", sessionBus: false, path: scopedPath(account)},
			{label: "system bus, default path", sessionBus: false, path: defaultPath, verifySelf: true},
		}
	}
	return []candidate{
		{label: "session bus, scoped path", sessionBus: true, path: scopedPath(account)},
		{label: "session bus, default path", sessionBus: true, path: defaultPath, verifySelf: true},
		{label: "system bus, scoped path", sessionBus: false, path: scopedPath(account)},
	}
}

// Negotiate tries each bus/path candidate in priority order and returns the
// first responsive handle. Exhausting every candidate is fatal for the
// caller: the daemon is not running in the expected mode and there is no
// recovery without operator intervention.
func Negotiate(ctx context.Context, account string, useSessionBus bool, logger *slog.Logger) (*Session, error) {
	var attempts []string

	for _, c := range candidates(account, useSessionBus) {
		sess, err := attempt(ctx, c, account)
		if err != nil {
			logger.Debug("daemon connection attempt failed", "via", c.label, "err", err)
			attempts = append(attempts, fmt.Sprintf("%s: %v", c.label, err))
			continue
		}
		logger.Info("daemon connection established", "via", c.label, "path", string(c.path))
		return sess, nil
	}

	return nil, fmt.Errorf("signal daemon unreachable, attempted: %s", strings.Join(attempts, "; "))
}

func attempt(ctx context.Context, c candidate, account string) (*Session, error) {
	conn, err := connect(c.sessionBus)
	if err != nil {
		return nil, err
	}

	obj := conn.Object(busName, c.path)

	// getSelfNumber doubles as the responsiveness probe.
	var self string
	if err := obj.CallWithContext(ctx, methodSelfNum, 0).Store(&self); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	if c.verifySelf && self != account {
		return nil, fmt.Errorf("daemon serves account %s, configuration expects %s", self, account)
	}

	return &Session{Conn: conn, Object: obj, Via: c.label}, nil
}

// connect returns the shared connection for the requested bus. godbus caches
// the session and system connections, so repeated attempts reuse them.
func connect(sessionBus bool) (*dbus.Conn, error) {
	if sessionBus {
		conn, err := dbus.SessionBus()
		if err != nil {
			return nil, fmt.Errorf("session bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return conn, nil
}
