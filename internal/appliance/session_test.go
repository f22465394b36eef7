package appliance

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		TransportKind: "fortinet",
		Host:          "192.0.2.10",
		Username:      "monitor",
		Password:      "secret",
		Context:       "VPN-CORP",
	}
}

func TestOpen_SelectsContext(t *testing.T) {
	ch := NewFakeChannel(nil)
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	sent := ch.Sent()
	want := []string{"config vdom", "edit VPN-CORP"}
	if len(sent) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], sent[i])
		}
	}
}

func TestOpen_QuotesContextWithSpaces(t *testing.T) {
	ch := NewFakeChannel(nil)
	cfg := testConfig()
	cfg.Context = "Branch Office"
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	if got := ch.Sent()[1]; got != `edit "Branch Office"` {
		t.Errorf("unexpected context command %q", got)
	}
}

func TestOpen_MissingUsernameFailsBeforeDial(t *testing.T) {
	calls := 0
	cfg := testConfig()
	cfg.Username = ""

	_, err := Open(context.Background(), FakeDialer(NewFakeChannel(nil), nil, &calls), cfg)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "username") {
		t.Errorf("error should name the missing field: %v", err)
	}
	if calls != 0 {
		t.Errorf("dialer should not be called, got %d calls", calls)
	}
}

func TestOpen_DialErrorsKeepTheirKind(t *testing.T) {
	authErr := Wrap(ErrAuthentication, "ssh handshake", errors.New("unable to authenticate"))
	_, err := Open(context.Background(), FakeDialer(nil, authErr, nil), testConfig())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Errorf("authentication failure must not also be a connection error: %v", err)
	}
}

func TestOpen_UnclassifiedDialErrorIsConnectionError(t *testing.T) {
	cause := errors.New("i/o timeout")
	_, err := Open(context.Background(), FakeDialer(nil, cause, nil), testConfig())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause should be preserved: %v", err)
	}
}

func TestOpen_ContextSwitchFailureIsConnectionError(t *testing.T) {
	ch := NewFakeChannel(nil)
	ch.Errors["edit VPN-CORP"] = errors.New("no response within 15s")

	_, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if ch.CloseCount() != 1 {
		t.Errorf("channel should be closed once, got %d", ch.CloseCount())
	}
}

func TestExecute_ReturnsResponse(t *testing.T) {
	ch := NewFakeChannel(map[string]string{"get system status": "Version: FortiGate-100F v7.2.5"})
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	out, err := sess.Execute(context.Background(), "get system status")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "Version: FortiGate-100F v7.2.5" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestExecute_FailureInvalidatesSession(t *testing.T) {
	ch := NewFakeChannel(nil)
	ch.Errors["get system status"] = io.EOF
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = sess.Execute(context.Background(), "get system status")
	if !errors.Is(err, ErrCommand) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected ErrCommand wrapping EOF, got %v", err)
	}
	if !sess.Closed() {
		t.Error("session should be closed after a command failure")
	}

	sentBefore := len(ch.Sent())
	_, err = sess.Execute(context.Background(), "get vpn ipsec tunnel summary")
	if !errors.Is(err, ErrCommand) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected ErrCommand carrying the original failure, got %v", err)
	}
	if len(ch.Sent()) != sentBefore {
		t.Error("no command should reach the transport after a failure")
	}
}

func TestExecute_CancelledContextClosesSession(t *testing.T) {
	ch := NewFakeChannel(nil)
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sess.Execute(ctx, "get system status")
	if !errors.Is(err, ErrCommand) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCommand wrapping context.Canceled, got %v", err)
	}
	if ch.CloseCount() != 1 {
		t.Errorf("expected channel closed once, got %d", ch.CloseCount())
	}
}

func TestClose_Idempotent(t *testing.T) {
	ch := NewFakeChannel(nil)
	sess, err := Open(context.Background(), FakeDialer(ch, nil, nil), testConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := sess.Close(); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
	if ch.CloseCount() != 1 {
		t.Errorf("transport should be released once, got %d", ch.CloseCount())
	}

	_, err = sess.Execute(context.Background(), "get system status")
	if !errors.Is(err, ErrCommand) {
		t.Errorf("execute on closed session should be ErrCommand, got %v", err)
	}
}
