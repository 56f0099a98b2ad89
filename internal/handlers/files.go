package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

const maxUploadMemory = 32 << 20

// remotePath validates the path query parameter.
func remotePath(r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		return "", false
	}
	return p, true
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "."
	}
	if dir, ok := h.Folders.Resolve(p); ok && !path.IsAbs(p) {
		p = dir
	}

	start := time.Now()
	entries, err := h.Manager.ListFiles(r.Context(), p)
	h.record(r, "list", p, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    p,
		"entries": entries,
	})
}

func (h *Handler) StatFile(w http.ResponseWriter, r *http.Request) {
	p, ok := remotePath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	start := time.Now()
	entry, err := h.Manager.Stat(r.Context(), p)
	h.record(r, "stat", p, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DownloadFile stages the remote file locally, streams it to the client and
// removes the staged copy.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	p, ok := remotePath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	local := h.Staging.Path(path.Base(p))
	defer h.Staging.Remove(local)

	start := time.Now()
	err := h.Manager.DownloadFile(r.Context(), p, local)
	h.record(r, "download", p, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}

	f, err := os.Open(local)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staged file unavailable")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staged file unavailable")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	http.ServeContent(w, r, path.Base(p), info.ModTime(), f)
}

// UploadFile accepts a multipart "file" and stores it in "dir", which may
// be a folder alias.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	dir, ok := h.Folders.Resolve(r.FormValue("dir"))
	if !ok {
		writeError(w, http.StatusBadRequest, "dir must be an absolute path or a known folder")
		return
	}
	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	local, size, err := h.Staging.Save(file, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer h.Staging.Remove(local)

	dest := path.Join(dir, name)
	start := time.Now()
	err = h.Manager.UploadFile(r.Context(), local, dest)
	h.record(r, "upload", dest, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"path": dest,
		"size": size,
	})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (h *Handler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	start := time.Now()
	err := h.Manager.CreateDirectory(r.Context(), req.Path)
	h.record(r, "mkdir", req.Path, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p, ok := remotePath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	start := time.Now()
	err := h.Manager.DeleteFile(r.Context(), p)
	h.record(r, "delete", p, "", start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handler) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	h.rename(w, r, req.From, req.To)
}

type moveRequest struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// MoveFile moves a file between folders, e.g. from "pending" to
// "approved".
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || strings.ContainsAny(req.Name, "/\\") || req.Name == "." || req.Name == ".." {
		writeError(w, http.StatusBadRequest, "name must be a plain file name")
		return
	}
	fromDir, ok := h.Folders.Resolve(req.From)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown folder %q", req.From))
		return
	}
	toDir, ok := h.Folders.Resolve(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown folder %q", req.To))
		return
	}
	h.rename(w, r, path.Join(fromDir, req.Name), path.Join(toDir, req.Name))
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request, from, to string) {
	start := time.Now()
	err := h.Manager.RenameFile(r.Context(), from, to)
	h.record(r, "rename", from, to, start, err)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"from": from, "to": to})
}
