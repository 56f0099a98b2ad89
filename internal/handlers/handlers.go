// Package handlers exposes the remote file manager over HTTP.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/karzamisca/TaskManager-sub000/internal/audit"
	"github.com/karzamisca/TaskManager-sub000/internal/config"
	"github.com/karzamisca/TaskManager-sub000/internal/middleware"
	"github.com/karzamisca/TaskManager-sub000/internal/profile"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
	"github.com/karzamisca/TaskManager-sub000/internal/staging"
)

// Profile loads and stores the connection parameters.
type Profile interface {
	Load() (sftpmanager.ConnectionConfig, error)
	Save(profile.Update) error
	Current() (profile.View, error)
}

// Handler holds the dependencies of the HTTP API. Auditor may be nil.
type Handler struct {
	Manager *sftpmanager.Manager
	Staging *staging.Area
	Auditor *audit.Auditor
	Profile Profile
	Folders config.Folders

	log *logrus.Entry
}

// New returns a Handler.
func New(m *sftpmanager.Manager, area *staging.Area, auditor *audit.Auditor, p Profile, folders config.Folders) *Handler {
	return &Handler{
		Manager: m,
		Staging: area,
		Auditor: auditor,
		Profile: p,
		Folders: folders,
		log:     logrus.WithField("component", "http"),
	}
}

// Router builds the full HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.Recoverer(h.log))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/remote", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Get("/status/stream", h.StreamStatus)
			r.Get("/transitions", h.GetTransitions)
			r.Post("/connect", h.Connect)
			r.Post("/disconnect", h.Disconnect)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Get("/folders", h.GetFolders)

			r.Get("/files", h.ListFiles)
			r.Delete("/files", h.DeleteFile)
			r.Get("/files/stat", h.StatFile)
			r.Get("/files/download", h.DownloadFile)
			r.Post("/files/upload", h.UploadFile)
			r.Post("/files/mkdir", h.CreateDirectory)
			r.Post("/files/rename", h.RenameFile)
			r.Post("/files/move", h.MoveFile)
		})

		r.Get("/audit", h.GetAuditLogs)
		r.Get("/logs", GetServerLogs)
		r.Delete("/logs", ClearServerLogs)
	})
	return r
}

// record writes an audit entry for a file operation if auditing is enabled.
func (h *Handler) record(r *http.Request, op, path, target string, start time.Time, err error) {
	if h.Auditor == nil {
		return
	}
	e := audit.FileOp(op, path, target, err)
	e.RemoteAddr = r.RemoteAddr
	e.RequestID = chimw.GetReqID(r.Context())
	e.Duration = time.Since(start)
	h.Auditor.Log(e)
}
