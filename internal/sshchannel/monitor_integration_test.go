package sshchannel

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"github.com/lcalzado/vpn-monitor/internal/vpnstatus"
)

const summaryOutput = `'HQ-DC' 203.0.113.1:0  selectors(total,up): 2/2  rx(pkt,err): 1520/0  tx(pkt,err): 1498/0
'BR-LYON' 203.0.113.2:0  selectors(total,up): 1/0  rx(pkt,err): 0/0  tx(pkt,err): 12/3
'BR-NICE' 203.0.113.3:0  selectors(total,up): 1/1  rx(pkt,err): 88/0  tx(pkt,err): 90/0`

func fortigate(t *testing.T) *fakeAppliance {
	t.Helper()
	return newFakeAppliance(t, "secret", map[string]string{
		vpnstatus.SummaryCommand: summaryOutput,
		vpnstatus.GatewayCommand("HQ-DC"): "vd: VPN-CORP/1\nname: HQ-DC\nversion: 2\n" +
			"addr: 198.51.100.1:500 -> 203.0.113.1:500\ncreated: 5012s ago\nstatus: established 5010-5010s ago\n",
		vpnstatus.GatewayCommand("BR-LYON"): "vd: VPN-CORP/1\nname: BR-LYON\nversion: 2\nstatus: connecting\n",
		vpnstatus.GatewayCommand("BR-NICE"): "vd: VPN-CORP/1\nname: BR-NICE\nversion: 2\nstatus: established 88-88s ago\n",
	})
}

func TestMonitor_EndToEnd(t *testing.T) {
	fa := fortigate(t)
	m, err := vpnstatus.NewMonitor(fa.config(t), NewDialer())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	snap, err := m.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}

	if snap.TotalVPNs != 3 || snap.VPNsUp != 2 {
		t.Errorf("expected 2/3 up, got %d/%d", snap.VPNsUp, snap.TotalVPNs)
	}
	if !snap.VPNStatuses["HQ-DC"].IsUp || snap.VPNStatuses["BR-LYON"].IsUp || !snap.VPNStatuses["BR-NICE"].IsUp {
		t.Errorf("unexpected states %v", snap.VPNStatuses)
	}
	if got, want := snap.Names(), []string{"HQ-DC", "BR-LYON", "BR-NICE"}; !reflect.DeepEqual(got, want) {
		t.Errorf("names %v, want %v", got, want)
	}

	wantReceived := []string{
		"config vdom",
		"edit VPN-CORP",
		vpnstatus.SummaryCommand,
		vpnstatus.GatewayCommand("HQ-DC"),
		vpnstatus.GatewayCommand("BR-LYON"),
		vpnstatus.GatewayCommand("BR-NICE"),
	}
	if got := fa.Received(); !reflect.DeepEqual(got, wantReceived) {
		t.Errorf("appliance received %q\nwant %q", got, wantReceived)
	}
	fa.waitShellsClosed(t)
}

func TestMonitor_EndToEndDropMidLoop(t *testing.T) {
	fa := fortigate(t)
	fa.setDropOn(vpnstatus.GatewayCommand("BR-NICE"))

	m, err := vpnstatus.NewMonitor(fa.config(t), NewDialer())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	snap, err := m.GetStatus(context.Background())
	if snap != nil {
		t.Errorf("expected no snapshot, got %+v", snap)
	}
	if !errors.Is(err, appliance.ErrCommand) {
		t.Fatalf("expected ErrCommand, got %v", err)
	}
	fa.waitShellsClosed(t)
}

func TestMonitor_EndToEndBadPassword(t *testing.T) {
	fa := fortigate(t)
	cfg := fa.config(t)
	cfg.Password = "wrong"

	m, err := vpnstatus.NewMonitor(cfg, NewDialer())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	if _, err := m.GetStatus(context.Background()); !errors.Is(err, appliance.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if len(fa.Received()) != 0 {
		t.Errorf("no commands should reach the appliance, got %q", fa.Received())
	}
}

func TestMonitor_EndToEndContextSelectionTimeout(t *testing.T) {
	fa := fortigate(t)
	fa.setSilent("edit VPN-CORP")

	m, err := vpnstatus.NewMonitor(fa.config(t), NewDialer())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	_, err = m.GetStatus(context.Background())
	if !errors.Is(err, appliance.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	fa.waitShellsClosed(t)
}

func TestMonitor_EndToEndSlowGatewayOutput(t *testing.T) {
	fa := fortigate(t)
	cfg := fa.config(t)
	cfg.CommandTimeout = 2 * time.Second
	// The appliance pauses after echoing, for longer than ReadIdle.
	fa.setDelay(vpnstatus.GatewayCommand("HQ-DC"), 4*cfg.ReadIdle)

	m, err := vpnstatus.NewMonitor(cfg, NewDialer())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	snap, err := m.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !snap.VPNStatuses["HQ-DC"].IsUp {
		t.Errorf("HQ-DC reported down: %v", snap.VPNStatuses)
	}
	if snap.VPNsUp != 2 {
		t.Errorf("expected 2 up, got %d", snap.VPNsUp)
	}
}
