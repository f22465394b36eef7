// Package vpnstatus polls a FortiGate for the state of its IPsec tunnels.
//
// A [Monitor] is built once at startup from a validated device configuration
// and handed to the serving layer. Each [Monitor.GetStatus] call opens its own
// appliance session, discovers the configured tunnels, queries every tunnel's
// IKE gateway state and returns a [Snapshot]. Nothing is cached between calls
// and concurrent calls do not share sessions.
//
// A poll is all-or-nothing: if any per-tunnel query fails, GetStatus returns
// the error and no snapshot, so a failed tunnel can never be mistaken for a
// tunnel that is simply not configured. A summary with no tunnels is a valid,
// empty snapshot.
package vpnstatus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"github.com/lcalzado/vpn-monitor/internal/logutil"
)

// ErrNotConfigured is reported by the serving layer when no Monitor could be
// built from the configuration.
var ErrNotConfigured = errors.New("FortiGate configuration not properly initialized")

// Monitor runs status polls against one appliance.
type Monitor struct {
	cfg    appliance.Config
	dialer appliance.Dialer
	now    func() time.Time
	newID  func() string

	mu        sync.RWMutex
	callbacks []StateChangeCallback
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used to stamp snapshots and transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithIDFunc sets the generator for cycle IDs.
func WithIDFunc(fn func() string) Option {
	return func(m *Monitor) { m.newID = fn }
}

// NewMonitor validates cfg and returns a Monitor that opens sessions through
// dialer. An invalid configuration is an appliance.ErrConfiguration.
func NewMonitor(cfg appliance.Config, dialer appliance.Dialer, opts ...Option) (*Monitor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("%w: no transport", appliance.ErrConfiguration)
	}
	m := &Monitor{
		cfg:    cfg,
		dialer: dialer,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the device configuration the monitor polls.
func (m *Monitor) Config() appliance.Config {
	return m.cfg
}

// OnStateChange registers a callback invoked on every cycle transition.
func (m *Monitor) OnStateChange(cb StateChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Monitor) newCycle() *cycle {
	m.mu.RLock()
	cbs := make([]StateChangeCallback, len(m.callbacks))
	copy(cbs, m.callbacks)
	m.mu.RUnlock()
	return newCycle(m.newID(), m.now, cbs)
}

// GetStatus runs one complete poll and returns its snapshot. Errors carry one
// of the appliance error kinds. The session is closed before GetStatus
// returns, whatever the outcome, including when ctx is cancelled.
func (m *Monitor) GetStatus(ctx context.Context) (*Snapshot, error) {
	c := m.newCycle()

	snap, err := m.run(ctx, c)
	if err != nil {
		c.fail(err)
		log.Printf("[vpnstatus] cycle %s failed after %s: %v", c.id, c.elapsed().Round(time.Millisecond), err)
		return nil, err
	}

	c.setState(StateDone, fmt.Sprintf("%d/%d tunnels up", snap.VPNsUp, snap.TotalVPNs))
	log.Printf("[vpnstatus] cycle %s done in %s: %d/%d tunnels up",
		c.id, c.elapsed().Round(time.Millisecond), snap.VPNsUp, snap.TotalVPNs)
	return snap, nil
}

// run performs the protocol sequence. The session it opens is closed by the
// time it returns.
func (m *Monitor) run(ctx context.Context, c *cycle) (*Snapshot, error) {
	c.setState(StateConnecting, m.cfg.Address())
	sess, err := appliance.Open(ctx, m.dialer, m.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("[vpnstatus] cycle %s: %v", c.id, err)
		}
	}()
	c.setState(StateContextSelected, m.cfg.Context)

	c.setState(StateDiscovering, SummaryCommand)
	names, err := m.discover(ctx, sess)
	if err != nil {
		return nil, err
	}

	states := make(map[string]TunnelState, len(names))
	for _, name := range names {
		c.setState(StateQueryingTunnel, name)
		up, err := m.queryTunnel(ctx, sess, name)
		if err != nil {
			return nil, err
		}
		states[name] = NewTunnelState(up)
	}

	c.setState(StateAssembling, fmt.Sprintf("%d tunnels", len(names)))
	return NewSnapshot(names, states, m.now()), nil
}

// discover runs the tunnel summary and extracts the tunnel names.
func (m *Monitor) discover(ctx context.Context, sess *appliance.Session) ([]string, error) {
	out, err := sess.Execute(ctx, SummaryCommand)
	if err != nil {
		return nil, err
	}
	if err := checkCLIError(SummaryCommand, out); err != nil {
		return nil, err
	}
	names := ParseTunnelNames(out)
	if len(names) == 0 {
		log.Printf("[vpnstatus] no tunnels configured in context %s", m.cfg.Context)
	} else {
		log.Printf("[vpnstatus] discovered %d tunnels: %s", len(names),
			logutil.Truncate(logutil.SanitizeForLog(strings.Join(names, ", ")), 256))
	}
	return names, nil
}

// queryTunnel reports whether the named tunnel's IKE gateway is established.
// The listing is only searched for the marker; an error reported by the
// appliance for one tunnel counts as not established.
func (m *Monitor) queryTunnel(ctx context.Context, sess *appliance.Session, name string) (bool, error) {
	out, err := sess.Execute(ctx, GatewayCommand(name))
	if err != nil {
		return false, err
	}
	return IsEstablished(out), nil
}
