// Package sshchannel implements appliance.Dialer over SSH.
//
// The appliance CLI is driven through an interactive PTY shell rather than
// per-command exec requests, because FortiOS context selection (config vdom /
// edit) is stateful and only lasts for the life of the shell. Responses are
// read with a bounded wait: once output past the command echo arrives, it is
// collected until it has been quiet for ReadIdle. A command that produces
// nothing but its echo within CommandTimeout fails.
// No prompt pattern is assumed.
package sshchannel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"github.com/lcalzado/vpn-monitor/internal/logutil"
	"golang.org/x/crypto/ssh"
)

const (
	// termCols is wide enough that FortiOS does not wrap long tunnel names.
	termCols = 511
	termRows = 24
	termType = "vt100"

	readChunkSize = 4096
)

// Dialer opens SSH shell channels to FortiGate appliances.
type Dialer struct {
	// HostKeyCallback, if set, replaces fingerprint pinning.
	HostKeyCallback ssh.HostKeyCallback
}

// NewDialer returns a Dialer that pins host keys according to
// Config.HostKeyFingerprint.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial connects, authenticates with the configured password, starts an
// interactive shell and drains the login banner. Network failures and
// timeouts are reported as appliance.ErrConnection, credential rejection as
// appliance.ErrAuthentication.
func (d *Dialer) Dial(ctx context.Context, cfg appliance.Config) (appliance.Channel, error) {
	cfg = cfg.WithDefaults()
	addr := cfg.Address()

	hostKeyCB, mismatch := d.hostKeyCallback(cfg.HostKeyFingerprint)
	clientCfg := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
			ssh.KeyboardInteractive(passwordChallenge(cfg.Password)),
		},
		HostKeyCallback: hostKeyCB,
		Timeout:         cfg.ConnectTimeout,
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, appliance.Wrap(appliance.ErrConnection, "dial "+addr, err)
	}

	// The handshake has no context support; bound it with a deadline and
	// abort it if ctx is cancelled first.
	deadline := time.Now().Add(cfg.ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	netConn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { netConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	stop()
	if err != nil {
		netConn.Close()
		return nil, classifyHandshakeError(addr, err, mismatch)
	}
	netConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	ch, err := startShell(client, cfg)
	if err != nil {
		client.Close()
		return nil, appliance.Wrap(appliance.ErrConnection, "start shell on "+addr, err)
	}

	if _, err := ch.collect(ctx, ""); err != nil {
		ch.Close()
		return nil, appliance.Wrap(appliance.ErrConnection, "wait for prompt on "+addr, err)
	}

	log.Printf("[sshchannel] connected to %s as %s", addr, logutil.SanitizeForLog(cfg.Username))
	return ch, nil
}

// passwordChallenge answers every keyboard-interactive question with the
// password. FortiOS uses this method when password auth is disabled.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

// classifyHandshakeError maps SSH handshake failures onto the appliance error
// kinds.
func classifyHandshakeError(addr string, err error, mismatch *FingerprintMismatchError) error {
	op := "ssh handshake with " + addr
	if mismatch != nil && mismatch.Actual != "" {
		return appliance.Wrap(appliance.ErrConnection, op, mismatch)
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return appliance.Wrap(appliance.ErrAuthentication, op, err)
	}
	return appliance.Wrap(appliance.ErrConnection, op, err)
}

// shellChannel is an interactive shell on an SSH connection. A reader
// goroutine pumps stdout into chunks until the session ends.
type shellChannel struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	chunks chan []byte
	done   chan struct{}

	errMu   sync.Mutex
	readErr error

	commandTimeout time.Duration
	readIdle       time.Duration

	closeOnce sync.Once
	closeErr  error
}

func startShell(client *ssh.Client, cfg appliance.Config) (*shellChannel, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType, termRows, termCols, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	ch := &shellChannel{
		client:         client,
		session:        session,
		stdin:          stdin,
		chunks:         make(chan []byte, 64),
		done:           make(chan struct{}),
		commandTimeout: cfg.CommandTimeout,
		readIdle:       cfg.ReadIdle,
	}
	go ch.pump(stdout)
	return ch, nil
}

func (c *shellChannel) pump(r io.Reader) {
	defer close(c.chunks)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
	}
}

func (c *shellChannel) transportErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil || errors.Is(c.readErr, io.EOF) {
		return errors.New("connection closed by appliance")
	}
	return fmt.Errorf("read from appliance: %w", c.readErr)
}

// Send writes command and returns the response with the echoed command line
// and trailing prompt removed.
func (c *shellChannel) Send(ctx context.Context, command string) (string, error) {
	c.discardPending()
	if _, err := io.WriteString(c.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}
	out, err := c.collect(ctx, command)
	if err != nil {
		return "", err
	}
	return NormalizeOutput(out, command), nil
}

// discardPending drops output left over from a previous command so it is not
// attributed to the next one.
func (c *shellChannel) discardPending() {
	for {
		select {
		case _, ok := <-c.chunks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// collect is the bounded-wait read for the response to command. The quiet
// period only starts once output beyond the echoed command line has arrived,
// so a slow appliance is not mistaken for an empty response. It returns once
// output has been quiet for readIdle, or at commandTimeout with whatever
// arrived. Reaching commandTimeout with nothing but the echo is an error, as
// is the stream ending.
func (c *shellChannel) collect(ctx context.Context, command string) (string, error) {
	var buf bytes.Buffer

	deadline := time.NewTimer(c.commandTimeout)
	defer deadline.Stop()
	idle := time.NewTimer(c.readIdle)
	idle.Stop()
	defer idle.Stop()
	var idleC <-chan time.Time

	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return "", c.transportErr()
			}
			buf.Write(chunk)
			if idleC != nil || responseStarted(buf.String(), command) {
				idle.Reset(c.readIdle)
				idleC = idle.C
			}
		case <-idleC:
			return buf.String(), nil
		case <-deadline.C:
			if buf.Len() == 0 {
				return "", fmt.Errorf("no response within %s", c.commandTimeout)
			}
			if idleC == nil && !responseStarted(buf.String(), command) {
				return "", fmt.Errorf("no output after echo of %q within %s", command, c.commandTimeout)
			}
			return buf.String(), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// responseStarted reports whether raw holds more than the echo of command.
// A first line that does not end with the command is not an echo, so any
// output then counts. With no command (the login banner) any output counts.
func responseStarted(raw, command string) bool {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.TrimLeft(strings.ReplaceAll(s, "\r", "\n"), " \t\n")
	if s == "" {
		return false
	}
	if command == "" {
		return true
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return !echoPending(strings.TrimRight(s, " \t"), command)
	}
	if !strings.HasSuffix(strings.TrimSpace(s[:nl]), command) {
		return true
	}
	return strings.TrimSpace(s[nl+1:]) != ""
}

// echoPending reports whether the unterminated line may still be, or already
// is, the echo of command, possibly after a prompt.
func echoPending(line, command string) bool {
	if strings.HasSuffix(line, command) {
		return true
	}
	for i := range line {
		if i > 0 && line[i-1] != ' ' {
			continue
		}
		if strings.HasPrefix(command, line[i:]) {
			return true
		}
	}
	return false
}

// Close ends the shell and the SSH connection. It is safe to call more than
// once.
func (c *shellChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.session.Close()
		if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = fmt.Errorf("close ssh connection: %w", err)
		}
	})
	return c.closeErr
}
