package sshchannel

import (
	"strings"
)

// NormalizeOutput turns raw shell output into the command's response text.
// CRLF line endings are folded and a bare CR counts as a line break. The
// echoed command line is dropped, as is a trailing CLI prompt
// ("FGT (VPN-CORP) # ").
func NormalizeOutput(raw, command string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")

	if command != "" {
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.HasSuffix(strings.TrimSpace(line), command) {
				lines = lines[i+1:]
			}
			break
		}
	}

	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || isPrompt(last) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}

	return strings.Join(lines, "\n")
}

func isPrompt(line string) bool {
	return strings.HasSuffix(line, "#") || strings.HasSuffix(line, "$")
}
