package sshchannel

import (
	"fmt"
	"log"
	"net"

	"golang.org/x/crypto/ssh"
)

// FingerprintMismatchError is returned when the appliance host key does not
// match the pinned fingerprint. This may indicate a replaced appliance or a
// MITM attack.
type FingerprintMismatchError struct {
	Host     string
	Expected string
	Actual   string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("host key fingerprint mismatch for %s: expected %s, got %s", e.Host, e.Expected, e.Actual)
}

// hostKeyCallback returns the callback used during the handshake and the
// mismatch record it fills in when it rejects a key. With no pinned
// fingerprint every key is accepted and its fingerprint logged so the
// operator can pin it.
func (d *Dialer) hostKeyCallback(expected string) (ssh.HostKeyCallback, *FingerprintMismatchError) {
	mismatch := &FingerprintMismatchError{Expected: expected}
	if d.HostKeyCallback != nil {
		return d.HostKeyCallback, mismatch
	}
	cb := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		actual := ssh.FingerprintSHA256(key)
		if expected == "" {
			log.Printf("[sshchannel] %s presented host key %s (not pinned)", hostname, actual)
			return nil
		}
		if actual != expected {
			mismatch.Host = hostname
			mismatch.Actual = actual
			return mismatch
		}
		return nil
	}
	return cb, mismatch
}
