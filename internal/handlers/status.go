package handlers

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/lcalzado/vpn-monitor/internal/appliance"
	"github.com/lcalzado/vpn-monitor/internal/vpnstatus"
)

// GetVPNStatus polls the appliance and returns the snapshot.
//
//	200 snapshot
//	429 the failure guard is blocking polls (Retry-After set)
//	502 connection, authentication, command or parse failure
//	503 no device configured
func (h *Handler) GetVPNStatus(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, vpnstatus.ErrNotConfigured.Error())
		return
	}

	if h.Guard != nil {
		if err := h.Guard.Allow(); err != nil {
			var blocked *ErrBlocked
			if errors.As(err, &blocked) {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(blocked.RetryAfter.Seconds()))))
			}
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
	}

	ctx := r.Context()
	if h.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.PollTimeout)
		defer cancel()
	}

	snap, err := h.Monitor.GetStatus(ctx)
	if h.Guard != nil {
		h.Guard.Record(err)
	}
	if err != nil {
		status := statusForError(err)
		log.Printf("[handlers] vpn status poll failed (%s): %v", appliance.KindName(err), err)
		writeJSON(w, status, map[string]string{
			"error": err.Error(),
			"kind":  appliance.KindName(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func statusForError(err error) int {
	switch appliance.Kind(err) {
	case appliance.ErrConnection, appliance.ErrAuthentication, appliance.ErrCommand, appliance.ErrParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
