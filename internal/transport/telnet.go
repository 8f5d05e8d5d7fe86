package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/starscheduler/starscheduler/internal/model"
)

const (
	telnetLoginWindow   = 3 * time.Second
	telnetReadIdleWindow = 2 * time.Second
)

// TelnetDriver is a small hand-rolled line reader over net.Conn: no
// ecosystem telnet client exists anywhere in the dependency pack, so
// this is a deliberate, narrow stdlib implementation (spec.md §4.1).
type TelnetDriver struct{}

// NewTelnetDriver constructs a TelnetDriver.
func NewTelnetDriver() *TelnetDriver {
	return &TelnetDriver{}
}

// Execute opens a one-shot telnet connection, completes the optional
// login dance, issues command, and reads until the transport goes
// quiet for telnetReadIdleWindow or timeout elapses.
func (d *TelnetDriver) Execute(ctx context.Context, cl model.Client, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)

	addr := fmt.Sprintf("%s:%d", cl.Hostname, cl.Port)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", "", fmt.Errorf("telnet: dial %s: %w", addr, err)
	}
	defer conn.Close()

	var buf bytes.Buffer
	if cl.User != "" {
		if err := telnetLogin(conn, &buf, cl.User, cl.Password); err != nil {
			return buf.String(), "", err
		}
	}
	if cl.SubstituteUser != "" {
		fmt.Fprintf(conn, "su -l %s\r\n", cl.SubstituteUser)
		telnetReadFor(conn, &buf, telnetLoginWindow, telnetLoginWindow)
	}

	buf.Reset()
	if _, err := fmt.Fprintf(conn, "%s\r\n", command); err != nil {
		return "", "", fmt.Errorf("telnet: write command: %w", err)
	}
	telnetReadFor(conn, &buf, telnetReadIdleWindow, timeout)

	return buf.String(), "", nil
}

// Open establishes a long-lived telnet connection for the registry.
func (d *TelnetDriver) Open(ctx context.Context, cl model.Client) (Handle, error) {
	addr := fmt.Sprintf("%s:%d", cl.Hostname, cl.Port)
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telnet: dial %s: %w", addr, err)
	}
	var buf bytes.Buffer
	if cl.User != "" {
		if err := telnetLogin(conn, &buf, cl.User, cl.Password); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &telnetHandle{conn: conn, substituteUser: cl.SubstituteUser}, nil
}

type telnetHandle struct {
	conn           net.Conn
	substituteUser string
}

func (h *telnetHandle) Execute(ctx context.Context, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)
	var buf bytes.Buffer
	if h.substituteUser != "" {
		fmt.Fprintf(h.conn, "su -l %s\r\n", h.substituteUser)
		telnetReadFor(h.conn, &buf, telnetLoginWindow, telnetLoginWindow)
		buf.Reset()
	}
	if _, err := fmt.Fprintf(h.conn, "%s\r\n", command); err != nil {
		return "", "", fmt.Errorf("telnet: write command: %w", err)
	}
	telnetReadFor(h.conn, &buf, telnetReadIdleWindow, timeout)
	return buf.String(), "", nil
}

func (h *telnetHandle) Alive() bool {
	if h.conn == nil {
		return false
	}
	one := make([]byte, 1)
	h.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := h.conn.Read(one)
	h.conn.SetReadDeadline(time.Time{})
	return err != nil && isTimeoutErr(err)
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (h *telnetHandle) Close() error {
	return h.conn.Close()
}

// telnetLogin waits for "login:"/"name:" then "word:" (case
// insensitive) within telnetLoginWindow, exactly matching spec.md
// §4.1's telnet login dance.
func telnetLogin(conn net.Conn, buf *bytes.Buffer, user, password string) error {
	if err := telnetWaitFor(conn, buf, telnetLoginWindow, "login:", "name:"); err != nil {
		return fmt.Errorf("telnet: waiting for login prompt: %w", err)
	}
	fmt.Fprintf(conn, "%s\r\n", user)
	buf.Reset()
	if err := telnetWaitFor(conn, buf, telnetLoginWindow, "word:"); err != nil {
		return fmt.Errorf("telnet: waiting for password prompt: %w", err)
	}
	fmt.Fprintf(conn, "%s\r\n", password)
	buf.Reset()
	return nil
}

func telnetWaitFor(conn net.Conn, buf *bytes.Buffer, window time.Duration, substrings ...string) error {
	deadline := time.Now().Add(window)
	one := make([]byte, 256)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := conn.Read(one)
		if n > 0 {
			buf.Write(one[:n])
			lower := strings.ToLower(buf.String())
			for _, s := range substrings {
				if strings.Contains(lower, s) {
					return nil
				}
			}
		}
		if err != nil && !isTimeoutErr(err) {
			return err
		}
	}
	return fmt.Errorf("telnet: prompt %v not seen within %s", substrings, window)
}

// telnetReadFor reads until the connection goes quiet for idle or
// overall elapses, whichever comes first (spec.md §4.1), mirroring
// shell.go's readUntilIdle.
func telnetReadFor(conn net.Conn, buf *bytes.Buffer, idle, overall time.Duration) {
	deadline := time.Now().Add(overall)
	one := make([]byte, 512)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		step := idle
		if remaining < step {
			step = remaining
		}
		conn.SetReadDeadline(time.Now().Add(step))
		n, err := conn.Read(one)
		if n > 0 {
			buf.Write(one[:n])
			continue
		}
		if err != nil {
			return // idle window elapsed with no new bytes, or overall deadline reached
		}
	}
}
