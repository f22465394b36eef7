package appliance

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the SSH port used when Config.Port is zero.
	DefaultPort = 22

	// DefaultContext is the vdom selected when none is configured.
	DefaultContext = "VPN-CORP"

	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 15 * time.Second

	// DefaultReadIdle is how long a response must stay quiet before it is
	// considered complete.
	DefaultReadIdle = 500 * time.Millisecond
)

// SupportedTransports lists the accepted values of Config.TransportKind. The
// names follow the netmiko device types operators already use.
var SupportedTransports = map[string]bool{
	"fortinet":     true,
	"fortinet_ssh": true,
}

// Config describes how to reach one appliance. It is immutable once built and
// shared read-only by concurrent status polls.
type Config struct {
	TransportKind string
	Host          string
	Port          int
	Username      string
	Password      string

	// Context is the administrative context (vdom) selected after login.
	Context string

	// HostKeyFingerprint pins the appliance host key (SHA256:... form).
	// Empty means trust on first use.
	HostKeyFingerprint string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ReadIdle       time.Duration
}

// WithDefaults returns a copy of c with zero port, context and timeouts
// replaced by their defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Context == "" {
		c.Context = DefaultContext
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ReadIdle <= 0 {
		c.ReadIdle = DefaultReadIdle
	}
	return c
}

// Validate reports an ErrConfiguration if a required field is empty or a
// value is out of range.
func (c Config) Validate() error {
	var missing []string
	if c.TransportKind == "" {
		missing = append(missing, "transport kind")
	}
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.Context == "" {
		missing = append(missing, "context")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	if !SupportedTransports[c.TransportKind] {
		return fmt.Errorf("%w: unsupported transport kind %q", ErrConfiguration, c.TransportKind)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConfiguration, c.Port)
	}
	return nil
}

// Address returns the host:port to dial.
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
