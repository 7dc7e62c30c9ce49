package handlers

import (
	"net/http"

	"gallery-viewer/internal/filesystem"
)

// ScanRequest limits a scan to paths inside the library folders. No paths
// means a full reload and scan.
type ScanRequest struct {
	Paths []string `json:"paths"`
}

// SearchRequest asks for a metadata search. No ids means every gallery.
type SearchRequest struct {
	IDs   []int64 `json:"ids"`
	Force bool    `json:"force"`
}

// TriggerScan queues a scan.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	roots := h.app.Config().FolderPaths()
	for _, p := range req.Paths {
		if !underAny(p, roots) {
			writeJSONError(w, "path is outside the library folders", http.StatusBadRequest)
			return
		}
	}
	h.app.RequestScan(req.Paths...)
	writeJSONStatus(w, http.StatusAccepted, "queued")
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if filesystem.PathUnder(path, root) {
			return true
		}
	}
	return false
}

// SearchMetadata queues a metadata search.
func (h *Handlers) SearchMetadata(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, id := range req.IDs {
		if _, ok := h.app.Library().Get(id); !ok {
			writeJSONError(w, "gallery not found", http.StatusNotFound)
			return
		}
	}
	h.app.RequestMatch(req.IDs, req.Force)
	writeJSONStatus(w, http.StatusAccepted, "queued")
}

// ListDuplicates returns the current duplicate groups without removing
// anything.
func (h *Handlers) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	writeJSONValue(w, h.app.DuplicateGroups(r.Context()))
}

// ResolveDuplicates removes all but one member of every duplicate group.
func (h *Handlers) ResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Dedupe(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONValue(w, report)
}
