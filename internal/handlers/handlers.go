// Package handlers serves the monitor over HTTP.
//
// The status endpoint runs one poll per request; nothing is cached. Engine
// errors are reported with their kind and never look like a snapshot.
package handlers

import (
	"context"
	"time"

	"github.com/lcalzado/vpn-monitor/internal/audit"
	"github.com/lcalzado/vpn-monitor/internal/vpnstatus"
	"gorm.io/gorm"
)

// StatusGetter runs a status poll. *vpnstatus.Monitor implements it.
type StatusGetter interface {
	GetStatus(ctx context.Context) (*vpnstatus.Snapshot, error)
}

// Handler holds the dependencies of the HTTP endpoints. Monitor is nil when
// the device configuration is incomplete; Auditor and DB may be nil when the
// audit database is unavailable. An empty LogPath
// falls back to the file the logging package was initialised with.
type Handler struct {
	Monitor     StatusGetter
	Guard       *FailureGuard
	Auditor     *audit.Auditor
	DB          *gorm.DB
	LogPath     string
	PollTimeout time.Duration
}
