package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/starscheduler/starscheduler/internal/model"
)

const (
	shellSuPromptWindow  = 3 * time.Second
	shellReadIdleWindow  = 1500 * time.Millisecond
	shellPromptRunes     = "$#>"
)

// ShellDriver executes commands over an interactive SSH channel.
// Host keys are auto-accepted by design: endpoints live on a
// controlled network (spec.md §4.1).
type ShellDriver struct{}

// NewShellDriver constructs a ShellDriver.
func NewShellDriver() *ShellDriver {
	return &ShellDriver{}
}

func shellClientConfig(cl model.Client) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            cl.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cl.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
}

// Execute opens a one-shot SSH connection, runs command, and closes
// the connection. When cl.SubstituteUser is set it drives an
// interactive shell through `su -l`; otherwise it uses a
// non-interactive exec session.
func (d *ShellDriver) Execute(ctx context.Context, cl model.Client, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)

	addr := fmt.Sprintf("%s:%d", cl.Hostname, cl.Port)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", "", fmt.Errorf("shell: dial %s: %w", addr, err)
	}
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, shellClientConfig(cl))
	if err != nil {
		return "", "", fmt.Errorf("shell: handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	if cl.SubstituteUser != "" {
		return runInteractive(client, cl.SubstituteUser, command, timeout)
	}
	return runNonInteractive(client, command, timeout)
}

// Open establishes a long-lived SSH connection the registry can hold
// across heartbeats (spec.md §4.2).
func (d *ShellDriver) Open(ctx context.Context, cl model.Client) (Handle, error) {
	addr := fmt.Sprintf("%s:%d", cl.Hostname, cl.Port)
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("shell: dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, shellClientConfig(cl))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("shell: handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	return &shellHandle{client: client, substituteUser: cl.SubstituteUser}, nil
}

type shellHandle struct {
	client         *ssh.Client
	substituteUser string
}

func (h *shellHandle) Execute(ctx context.Context, command string, timeout time.Duration) (string, string, error) {
	checkDangerous(command)
	if h.substituteUser != "" {
		return runInteractive(h.client, h.substituteUser, command, timeout)
	}
	return runNonInteractive(h.client, command, timeout)
}

func (h *shellHandle) Alive() bool {
	if h.client == nil {
		return false
	}
	_, _, err := h.client.SendRequest("keepalive@starscheduler", true, nil)
	return err == nil
}

func (h *shellHandle) Close() error {
	return h.client.Close()
}

func runNonInteractive(client *ssh.Client, command string, timeout time.Duration) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("shell: new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return stdout.String(), stderr.String(), fmt.Errorf("shell: run: %w", err)
		}
		return stdout.String(), stderr.String(), nil
	case <-time.After(timeout):
		session.Signal(ssh.SIGKILL)
		return stdout.String(), fmt.Sprintf("Timeout after %ds", int(timeout.Seconds())), nil
	}
}

// runInteractive drives `su -l {user}` then the command through an
// interactive PTY shell, draining buffered bytes before each send
// exactly as the original substitute-user flow does on both the
// persistent and one-shot SSH paths.
func runInteractive(client *ssh.Client, user, command string, timeout time.Duration) (string, string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("shell: new session: %w", err)
	}
	defer session.Close()

	if err := session.RequestPty("xterm", 80, 40, ssh.TerminalModes{}); err != nil {
		return "", "", fmt.Errorf("shell: request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return "", "", fmt.Errorf("shell: stdin pipe: %w", err)
	}
	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	if err := session.Shell(); err != nil {
		return "", "", fmt.Errorf("shell: start shell: %w", err)
	}

	drainUntilPrompt(&output, shellSuPromptWindow)
	fmt.Fprintf(stdin, "su -l %s\n", user)
	drainUntilPrompt(&output, shellSuPromptWindow)

	output.Reset()
	fmt.Fprintf(stdin, "%s\n", command)
	readUntilIdle(&output, shellReadIdleWindow, timeout)

	return output.String(), "", nil
}

func drainUntilPrompt(buf *bytes.Buffer, window time.Duration) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		s := buf.String()
		if s != "" && strings.ContainsAny(s[len(s)-1:], shellPromptRunes) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func readUntilIdle(buf *bytes.Buffer, idle, overall time.Duration) {
	deadline := time.Now().Add(overall)
	lastLen := buf.Len()
	lastChange := time.Now()
	for time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		if buf.Len() != lastLen {
			lastLen = buf.Len()
			lastChange = time.Now()
			continue
		}
		if time.Since(lastChange) >= idle {
			return
		}
	}
}
