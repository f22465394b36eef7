package handlers

import (
	"net/http"
	"strconv"

	"github.com/lcalzado/vpn-monitor/internal/logging"
)

const maxLogLines = 5000

// GetServerLogs returns the tail of the service log file. Without a
// configured LogPath it reads the file logging was initialised with.
func (h *Handler) GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = min(n, maxLogLines)
		}
	}

	path := h.LogPath
	if path == "" {
		path = logging.Path()
	}
	content, err := logging.ReadTail(path, lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}
