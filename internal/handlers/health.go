package handlers

import (
	"net/http"

	"github.com/karzamisca/TaskManager-sub000/internal/database"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.PingContext(r.Context()); err == nil {
				dbStatus = "connected"
			}
		}
	}

	info := h.Manager.StatusInfo()
	status := "healthy"
	switch {
	case dbStatus != "connected":
		status = "unhealthy"
	case !info.Connected:
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"database": dbStatus,
		"remote":   info,
	})
}
