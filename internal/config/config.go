package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/lcalzado/vpn-monitor/internal/appliance"
)

// Settings holds the service configuration. Service settings are read with
// the VPNMON_ prefix; the device block keeps the unprefixed variable names
// the monitor has always been deployed with.
type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":5000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/vpn-monitor.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/vpn-monitor.log"`

	// Appliance timeouts
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"15s"`
	ReadIdle       time.Duration `envconfig:"READ_IDLE" default:"500ms"`
	PollTimeout    time.Duration `envconfig:"POLL_TIMEOUT" default:"60s"`

	// Session audit
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
	AuditPurgeSchedule string `envconfig:"AUDIT_PURGE_SCHEDULE" default:"@daily"`

	FailureThreshold int `envconfig:"FAILURE_THRESHOLD" default:"3"`

	Device Device `ignored:"true"`
}

// Device is the appliance connection block.
type Device struct {
	Type     string `envconfig:"DEVTYPE"`
	Host     string `envconfig:"FORTIIP"`
	Port     int    `envconfig:"FORTIPORT" default:"22"`
	Username string `envconfig:"FORTIUSER"`
	Password string `envconfig:"FORTIPASS"`
	VDOM     string `envconfig:"FORTIVDOM" default:"VPN-CORP"`
	HostKey  string `envconfig:"FORTI_HOSTKEY"`
}

// Load reads Settings from the environment. Missing device values are not an
// error here; they surface when the device configuration is validated.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("VPNMON", &s); err != nil {
		return nil, fmt.Errorf("load service settings: %w", err)
	}
	if err := envconfig.Process("", &s.Device); err != nil {
		return nil, fmt.Errorf("load device settings: %w", err)
	}
	return &s, nil
}

// DeviceConfig returns the appliance configuration described by s.
func (s *Settings) DeviceConfig() appliance.Config {
	return appliance.Config{
		TransportKind:      s.Device.Type,
		Host:               s.Device.Host,
		Port:               s.Device.Port,
		Username:           s.Device.Username,
		Password:           s.Device.Password,
		Context:            s.Device.VDOM,
		HostKeyFingerprint: s.Device.HostKey,
		ConnectTimeout:     s.ConnectTimeout,
		CommandTimeout:     s.CommandTimeout,
		ReadIdle:           s.ReadIdle,
	}
}
