package sshchannel

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"golang.org/x/crypto/ssh"
)

// fakeAppliance is an in-process SSH server that behaves like a FortiGate
// CLI: it echoes each command, prints a canned response and a prompt.
type fakeAppliance struct {
	addr        string
	hostKey     ssh.PublicKey
	password    string
	responses   map[string]string
	silent      map[string]bool          // commands that get no output at all
	dropOn      map[string]bool          // commands that make the server hang up
	delay       map[string]time.Duration // pause between echo and response
	noBanner    bool
	listener    net.Listener
	done        chan struct{}
	mu          sync.Mutex
	received    []string
	netConns    []net.Conn
	openShells  int
	totalShells int
}

func newFakeAppliance(t *testing.T, password string, responses map[string]string) *fakeAppliance {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	if responses == nil {
		responses = map[string]string{}
	}
	fa := &fakeAppliance{
		hostKey:   hostSigner.PublicKey(),
		password:  password,
		responses: responses,
		silent:    map[string]bool{},
		dropOn:    map[string]bool{},
		delay:     map[string]time.Duration{},
		done:      make(chan struct{}),
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if string(pw) == fa.password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fa.listener = listener
	fa.addr = listener.Addr().String()

	go func() {
		defer close(fa.done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			fa.mu.Lock()
			fa.netConns = append(fa.netConns, netConn)
			fa.mu.Unlock()
			go fa.handleConn(netConn, config)
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		fa.mu.Lock()
		for _, c := range fa.netConns {
			c.Close()
		}
		fa.mu.Unlock()
		<-fa.done
	})
	return fa
}

func (fa *fakeAppliance) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range requests {
				switch req.Type {
				case "pty-req", "env", "window-change":
					if req.WantReply {
						req.Reply(true, nil)
					}
				case "shell":
					if req.WantReply {
						req.Reply(true, nil)
					}
					go fa.serveShell(ch, netConn)
				default:
					if req.WantReply {
						req.Reply(false, nil)
					}
				}
			}
		}()
	}
}

func (fa *fakeAppliance) serveShell(ch ssh.Channel, netConn net.Conn) {
	fa.mu.Lock()
	fa.openShells++
	fa.totalShells++
	fa.mu.Unlock()
	defer func() {
		fa.mu.Lock()
		fa.openShells--
		fa.mu.Unlock()
		ch.Close()
	}()

	prompt := "FGT-TEST # "
	fa.mu.Lock()
	noBanner := fa.noBanner
	fa.mu.Unlock()
	if !noBanner {
		fmt.Fprintf(ch, "\r\nFGT-TEST login banner\r\n%s", prompt)
	}

	scanner := bufio.NewScanner(ch)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fa.mu.Lock()
		fa.received = append(fa.received, line)
		drop := fa.dropOn[line]
		silent := fa.silent[line]
		resp := fa.responses[line]
		delay := fa.delay[line]
		fa.mu.Unlock()

		if drop {
			netConn.Close()
			return
		}
		if silent {
			continue
		}
		if strings.HasPrefix(line, "edit ") {
			prompt = fmt.Sprintf("FGT-TEST (%s) # ", strings.TrimPrefix(line, "edit "))
		}
		var b strings.Builder
		b.WriteString(line + "\r\n")
		if delay > 0 {
			ch.Write([]byte(b.String()))
			b.Reset()
			time.Sleep(delay)
		}
		if resp != "" {
			b.WriteString(strings.ReplaceAll(resp, "\n", "\r\n") + "\r\n")
		}
		b.WriteString("\r\n" + prompt)
		ch.Write([]byte(b.String()))
	}
}

func (fa *fakeAppliance) setSilent(command string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.silent[command] = true
}

func (fa *fakeAppliance) setDropOn(command string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.dropOn[command] = true
}

func (fa *fakeAppliance) setDelay(command string, d time.Duration) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.delay[command] = d
}

func (fa *fakeAppliance) setNoBanner() {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.noBanner = true
}

func (fa *fakeAppliance) Received() []string {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	out := make([]string, len(fa.received))
	copy(out, fa.received)
	return out
}

// waitShellsClosed waits until the server has seen every shell end.
func (fa *fakeAppliance) waitShellsClosed(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fa.mu.Lock()
		open := fa.openShells
		fa.mu.Unlock()
		if open == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("appliance still has open shells")
}

// config returns a device config pointing at the fake appliance with short
// timeouts.
func (fa *fakeAppliance) config(t *testing.T) appliance.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(fa.addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return appliance.Config{
		TransportKind:  "fortinet",
		Host:           host,
		Port:           port,
		Username:       "monitor",
		Password:       fa.password,
		Context:        "VPN-CORP",
		ConnectTimeout: 2 * time.Second,
		CommandTimeout: 300 * time.Millisecond,
		ReadIdle:       50 * time.Millisecond,
	}
}
