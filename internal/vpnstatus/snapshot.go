package vpnstatus

import (
	"encoding/json"
	"time"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"

	// LastCheckLayout formats Snapshot.LastCheck on the wire.
	LastCheckLayout = "2006-01-02 15:04:05"
)

// TunnelState is the live state of one tunnel, computed fresh every poll.
type TunnelState struct {
	Status string `json:"status"`
	IsUp   bool   `json:"is_up"`
}

// NewTunnelState returns the state for an established or non-established
// tunnel.
func NewTunnelState(up bool) TunnelState {
	if up {
		return TunnelState{Status: StatusUp, IsUp: true}
	}
	return TunnelState{Status: StatusDown}
}

// Snapshot is the result of one complete poll. It is never partially
// populated and is not modified after construction.
type Snapshot struct {
	VPNStatuses map[string]TunnelState
	LastCheck   time.Time
	TotalVPNs   int
	VPNsUp      int

	names []string
}

// NewSnapshot assembles a snapshot from the tunnels in discovery order and
// their states, deriving the counts from the states.
func NewSnapshot(names []string, states map[string]TunnelState, at time.Time) *Snapshot {
	s := &Snapshot{
		VPNStatuses: make(map[string]TunnelState, len(states)),
		LastCheck:   at,
		names:       make([]string, 0, len(names)),
	}
	for _, name := range names {
		st, ok := states[name]
		if !ok {
			continue
		}
		if _, dup := s.VPNStatuses[name]; dup {
			continue
		}
		s.VPNStatuses[name] = st
		s.names = append(s.names, name)
		if st.IsUp {
			s.VPNsUp++
		}
	}
	s.TotalVPNs = len(s.VPNStatuses)
	return s
}

// Names returns the tunnel names in discovery order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

type snapshotJSON struct {
	VPNStatuses map[string]TunnelState `json:"vpn_statuses"`
	LastCheck   string                 `json:"last_check"`
	TotalVPNs   int                    `json:"total_vpns"`
	VPNsUp      int                    `json:"vpns_up"`
}

// MarshalJSON encodes the snapshot in the shape served by /api/vpn-status.
// Map keys are emitted sorted, so output is deterministic.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		VPNStatuses: s.VPNStatuses,
		LastCheck:   s.LastCheck.Format(LastCheckLayout),
		TotalVPNs:   s.TotalVPNs,
		VPNsUp:      s.VPNsUp,
	})
}
