package handlers

import (
	"net/http"

	"github.com/lcalzado/vpn-monitor/internal/database"
)

// HealthCheck reports database connectivity and whether a device is
// configured. It never contacts the appliance.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if h.DB != nil {
		if err := database.Ping(h.DB); err == nil {
			dbStatus = "connected"
		}
	}

	monitorStatus := "not_configured"
	if h.Monitor != nil {
		monitorStatus = "configured"
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"monitor":  monitorStatus,
	})
}
