package appliance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// EnterContextModeCommand switches the CLI into multi-vdom administration.
const EnterContextModeCommand = "config vdom"

// SelectContextCommand returns the command that enters the named vdom.
func SelectContextCommand(name string) string {
	return "edit " + QuoteArg(name)
}

// QuoteArg double-quotes a CLI argument that contains whitespace.
func QuoteArg(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// Channel is a line-oriented command channel to the appliance. Send writes one
// command and returns whatever response text arrived within the channel's
// bounded wait; it never blocks indefinitely.
type Channel interface {
	Send(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens a Channel. Implementations should classify failures with
// ErrConnection or ErrAuthentication; unclassified errors are treated as
// ErrConnection.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg Config) (Channel, error)

// Dial calls f(ctx, cfg).
func (f DialerFunc) Dial(ctx context.Context, cfg Config) (Channel, error) {
	return f(ctx, cfg)
}

var errSessionClosed = errors.New("session closed")

// Session is an authenticated command channel positioned in the configured
// context. It is not safe for concurrent Execute calls; the appliance does not
// support interleaved commands on one session.
type Session struct {
	addr string
	ch   Channel

	mu     sync.Mutex
	closed bool
	broken error // first transport failure; the session is unusable afterwards
}

// Open connects to the appliance described by cfg and selects its context.
// Configuration problems are reported before any network activity. A failure
// while selecting the context closes the channel and is reported as
// ErrConnection. Open never retries.
func Open(ctx context.Context, dialer Dialer, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addr := cfg.Address()
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	ch, err := dialer.Dial(dialCtx, cfg)
	if err != nil {
		if Kind(err) == nil {
			err = Wrap(ErrConnection, "dial "+addr, err)
		}
		log.Printf("[appliance] connect to %s failed: %v", addr, err)
		return nil, err
	}

	s := &Session{addr: addr, ch: ch}
	for _, cmd := range []string{EnterContextModeCommand, SelectContextCommand(cfg.Context)} {
		if _, err := s.send(ctx, cmd); err != nil {
			s.Close()
			err = Wrap(ErrConnection, fmt.Sprintf("select context %q", cfg.Context), err)
			log.Printf("[appliance] %s: %v", addr, err)
			return nil, err
		}
	}

	log.Printf("[appliance] session open to %s (context %s)", addr, cfg.Context)
	return s, nil
}

// Execute sends one command line and returns the raw response text. Any
// failure is an ErrCommand and invalidates the session; the transport is
// released immediately so an abandoned poll cannot leak a connection.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	out, err := s.send(ctx, command)
	if err != nil {
		return "", Wrap(ErrCommand, fmt.Sprintf("execute %q", command), err)
	}
	return out, nil
}

func (s *Session) send(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	switch {
	case s.broken != nil:
		err := s.broken
		s.mu.Unlock()
		return "", fmt.Errorf("session unusable after earlier failure: %w", err)
	case s.closed:
		s.mu.Unlock()
		return "", errSessionClosed
	}
	ch := s.ch
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		s.fail(err)
		return "", err
	}

	out, err := ch.Send(ctx, command)
	if err != nil {
		s.fail(err)
		return "", err
	}
	return out, nil
}

// fail records the first transport failure and releases the channel.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.broken == nil {
		s.broken = err
	}
	s.mu.Unlock()
	if cerr := s.Close(); cerr != nil {
		log.Printf("[appliance] %v", cerr)
	}
}

// Close releases the transport. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.ch.Close(); err != nil {
		return fmt.Errorf("close session to %s: %w", s.addr, err)
	}
	log.Printf("[appliance] session to %s closed", s.addr)
	return nil
}

// Closed reports whether the session has been released.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
