package vpnstatus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
)

const (
	// SummaryCommand lists the configured IPsec tunnels.
	SummaryCommand = "get vpn ipsec tunnel summary"

	// EstablishedMarker appears in the IKE gateway listing of a tunnel whose
	// phase 1 is up.
	EstablishedMarker = "status: established"
)

// GatewayCommand returns the command that reports the IKE gateway state of
// the named tunnel.
func GatewayCommand(name string) string {
	return "diagnose vpn ike gateway list name " + appliance.QuoteArg(name)
}

var quotedToken = regexp.MustCompile(`'([^'\r\n]*)'|"([^"\r\n]*)"`)

// ParseTunnelNames extracts tunnel identifiers from tunnel summary output.
// Every substring enclosed in single or double quotes (on one line) is a
// name, with the quotes stripped. Empty names are skipped and duplicates
// collapse to their first occurrence, so the result is in discovery order.
// Text with no quoted tokens yields an empty, non-nil slice.
func ParseTunnelNames(text string) []string {
	names := []string{}
	seen := make(map[string]bool)
	for _, m := range quotedToken.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// IsEstablished reports whether a gateway listing contains EstablishedMarker.
// Anything else, including empty text or an explicit down state, is not
// established.
func IsEstablished(text string) bool {
	return strings.Contains(text, EstablishedMarker)
}

// cliErrorMarkers are FortiOS responses to commands the CLI could not run.
var cliErrorMarkers = []string{
	"Unknown action",
	"Command fail",
	"command parse error",
}

// checkCLIError returns an ErrParse if text is a CLI error instead of command
// output.
func checkCLIError(command, text string) error {
	for _, marker := range cliErrorMarkers {
		if strings.Contains(text, marker) {
			return appliance.Wrap(appliance.ErrParse, fmt.Sprintf("parse response to %q", command),
				fmt.Errorf("appliance reported %q", firstLine(text, marker)))
		}
	}
	return nil
}

// firstLine returns the line of text containing marker.
func firstLine(text, marker string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, marker) {
			return strings.TrimSpace(line)
		}
	}
	return marker
}
