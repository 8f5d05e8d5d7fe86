// Package transport implements the four stateless command executors
// (spec.md §4.1): interactive shell over SSH, line-oriented telnet,
// fire-and-forget UDP datagram, and local subprocess.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/starscheduler/starscheduler/internal/guard"
	"github.com/starscheduler/starscheduler/internal/model"
)

// Driver is the uniform command-execution contract every transport
// implements. A fire-and-forget transport (datagram) returns
// ("sent", "") on a successful write and never blocks on a reply.
type Driver interface {
	Execute(ctx context.Context, cl model.Client, command string, timeout time.Duration) (stdout, stderr string, err error)
}

// PersistentDriver is implemented by transports the registry can hold
// open across calls (shell, telnet). Open returns a live handle; the
// handles do no locking of their own, so callers serialize calls with
// their own session-level mutual exclusion (spec.md §4.2).
type PersistentDriver interface {
	Driver
	Open(ctx context.Context, cl model.Client) (Handle, error)
}

// Handle is a live, persistent connection to one Client.
type Handle interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, err error)
	Alive() bool
	Close() error
}

// checkDangerous refuses and terminates the process on a dangerous
// command match, exactly as spec.md §6/§7 requires of every driver
// before a byte leaves the host.
func checkDangerous(command string) {
	if guard.Check(command) {
		guard.Terminate(command)
	}
}

// ForTransport resolves the Driver implementation for a transport tag.
func ForTransport(t model.Transport) (Driver, error) {
	switch t {
	case model.TransportShell:
		return NewShellDriver(), nil
	case model.TransportTelnet:
		return NewTelnetDriver(), nil
	case model.TransportDatagram:
		return NewDatagramDriver(), nil
	case model.TransportSubprocess:
		return NewSubprocessDriver(), nil
	default:
		return nil, fmt.Errorf("transport: unknown transport %q", t)
	}
}
